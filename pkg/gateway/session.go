package gateway

import (
	"sync"
	"time"

	"github.com/meditrackpro/payments/pkg/intent"
)

// Prefill carries the tenant display fields shown in the hosted checkout
type Prefill struct {
	Name  string
	Email string
}

// CompletionEvent is the gateway's report of a successful payment
type CompletionEvent struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`
}

// CheckoutSession is one open hosted-checkout surface. Its completion is a
// one-shot event: the channel receives at most one value and is closed when
// the session completes.
type CheckoutSession struct {
	handoff  intent.GatewayHandoff
	prefill  Prefill
	notes    map[string]string
	openedAt time.Time

	once sync.Once
	done chan CompletionEvent
}

func newCheckoutSession(handoff *intent.GatewayHandoff, prefill Prefill, notes map[string]string) *CheckoutSession {
	return &CheckoutSession{
		handoff:  *handoff,
		prefill:  prefill,
		notes:    notes,
		openedAt: time.Now(),
		done:     make(chan CompletionEvent, 1),
	}
}

// Completion returns the one-shot completion channel. It yields exactly one
// event on a successful payment and nothing at all otherwise; there is no
// cancel or failure event.
func (s *CheckoutSession) Completion() <-chan CompletionEvent {
	return s.done
}

// Handoff returns the gateway handoff this session was opened from
func (s *CheckoutSession) Handoff() intent.GatewayHandoff {
	return s.handoff
}

// OrderID returns the gateway order this session settles
func (s *CheckoutSession) OrderID() string {
	return s.handoff.OrderID
}

// SubscriptionID returns the subscription this session settles
func (s *CheckoutSession) SubscriptionID() string {
	return s.handoff.SubscriptionID
}

// OpenedAt returns when the session was opened
func (s *CheckoutSession) OpenedAt() time.Time {
	return s.openedAt
}

// Notes returns the reconciliation notes attached to the checkout
func (s *CheckoutSession) Notes() map[string]string {
	return s.notes
}

// deliver hands the event to the waiter; returns false if already delivered
func (s *CheckoutSession) deliver(ev CompletionEvent) bool {
	delivered := false
	s.once.Do(func() {
		s.done <- ev
		close(s.done)
		delivered = true
	})
	return delivered
}
