// Package gateway drives the hosted payment-gateway checkout for prepaid
// settlements.
//
// The adapter performs a process-wide readiness handshake against the
// gateway before the first checkout (at most one successful initialization,
// concurrent callers coalesced), opens checkout sessions from a gateway
// handoff, and surfaces each session's asynchronous completion as a one-shot
// event. Completion payloads are authenticated against the gateway's
// HMAC-SHA256 signature scheme before they are delivered.
//
// There is no cancel or failure callback from the gateway: a session that
// never completes stays pending. Operators observe such sessions through
// PendingSessions; the adapter itself never times a session out.
package gateway
