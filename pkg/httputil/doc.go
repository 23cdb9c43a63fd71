// Package httputil provides the JSON request/response helpers and the
// middleware stack shared by the checkout API and the health server.
//
// Error payloads always carry a single "error" field; the upstream
// IntentService uses the same shape, so browser and CLI clients only ever
// parse one error format.
package httputil
