// Package api exposes the payment service's HTTP surface: the checkout
// endpoint the admin console calls, the status endpoint it polls while a
// hosted checkout is open, and the webhook the payment gateway calls back
// with completions.
//
// Prepaid checkouts are asynchronous: POST /api/checkout answers 202 with
// the gateway handoff as soon as the hosted checkout opens, the browser
// drives the gateway widget, the gateway calls POST /api/gateway/callback,
// and the console polls GET /api/checkout/{order_id} until the attempt
// finalizes. Cash-on-delivery and direct-transfer checkouts complete within
// the original request.
package api
