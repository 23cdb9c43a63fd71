// Package orchestrator drives one subscription checkout from the renewal
// lookup through settlement to the finalized tenant session.
//
// An Orchestrator instance is scoped to a single attempt. Begin performs
// the subscription lookup and gates entry into plan selection; Pay runs the
// settlement branch for the selected method. There is no automatic retry:
// once an attempt fails after its intent was created, a fresh orchestrator
// (and therefore a fresh intent) is required.
package orchestrator
