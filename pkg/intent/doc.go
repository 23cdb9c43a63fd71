// Package intent is the HTTP client for the upstream IntentService, the
// server that persists subscription intents and finalizes them from
// verification reports.
//
// Three operations define the boundary:
//
//	GET  /subscriptions/{tenantId}  existing-subscription lookup
//	POST /payment                   create a subscription intent
//	POST /verify-payment            report a settlement outcome
//
// Failures are classified: a *NetworkError means the call never completed,
// a *ServerError means the server answered with a failure status. Callers
// branch on the class with errors.As.
package intent
