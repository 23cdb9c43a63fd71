// Package verification reports settlement outcomes back to the
// IntentService so a subscription intent can be finalized.
//
// The coordinator submits at most one verification per orchestration
// attempt. Direct-transfer settlements never produce a verification at all;
// their reconciliation happens out of band.
package verification

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/meditrackpro/payments/pkg/intent"
)

// Submitter is the slice of the IntentService the coordinator needs
type Submitter interface {
	SubmitVerification(ctx context.Context, subscriptionID string, status intent.PaymentStatus) error
}

// Coordinator reports the outcome of one settlement attempt. A coordinator
// is scoped to a single attempt and enforces exactly-once submission.
type Coordinator struct {
	submitter Submitter
	submitted atomic.Bool
}

// NewCoordinator creates a coordinator for one settlement attempt
func NewCoordinator(submitter Submitter) *Coordinator {
	return &Coordinator{submitter: submitter}
}

// SubmitPaid reports a confirmed gateway payment
func (c *Coordinator) SubmitPaid(ctx context.Context, subscriptionID string) error {
	return c.submit(ctx, subscriptionID, intent.StatusPaid)
}

// SubmitPending reports a cash-on-delivery settlement awaiting collection
func (c *Coordinator) SubmitPending(ctx context.Context, subscriptionID string) error {
	return c.submit(ctx, subscriptionID, intent.StatusPending)
}

func (c *Coordinator) submit(ctx context.Context, subscriptionID string, status intent.PaymentStatus) error {
	if subscriptionID == "" {
		return fmt.Errorf("verification requires a subscription ID")
	}
	if !c.submitted.CompareAndSwap(false, true) {
		return fmt.Errorf("verification already submitted for this attempt")
	}
	if err := c.submitter.SubmitVerification(ctx, subscriptionID, status); err != nil {
		return fmt.Errorf("failed to submit %s verification: %w", status, err)
	}
	return nil
}
