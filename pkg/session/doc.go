// Package session persists the tenant session written when a checkout
// finalizes.
//
// A finalized checkout ends with the tenant identifier stored under a
// well-known key so the admin console picks the tenant up after the login
// redirect. The Redis store is the production backend; the memory store
// backs tests and single-process development.
package session
