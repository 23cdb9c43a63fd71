package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meditrackpro/payments/pkg/intent"
)

// ErrGatewayUnavailable means the gateway readiness handshake failed. It is
// raised before any intent is created, so a failed handshake never leaves an
// orphaned intent behind.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// DefaultCheckoutURL is the gateway's hosted checkout resource, probed
// during the readiness handshake
const DefaultCheckoutURL = "https://checkout.razorpay.com/v1/checkout.js"

// Config holds gateway adapter configuration
type Config struct {
	// CheckoutURL is probed once to confirm the gateway is reachable
	CheckoutURL string
	// WebhookSecret keys the HMAC check on completion payloads. Empty
	// disables the signature check (local development only).
	WebhookSecret string
	// HTTPTimeout bounds the readiness probe
	HTTPTimeout time.Duration
}

// Adapter manages gateway readiness and open checkout sessions. It is safe
// for concurrent use; the readiness state is process-wide for the adapter.
type Adapter struct {
	cfg        Config
	httpClient *http.Client

	group singleflight.Group
	ready atomic.Bool

	mu       sync.Mutex
	sessions map[string]*CheckoutSession // keyed by order ID
}

// NewAdapter creates a gateway adapter
func NewAdapter(cfg Config) *Adapter {
	if cfg.CheckoutURL == "" {
		cfg.CheckoutURL = DefaultCheckoutURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		sessions:   make(map[string]*CheckoutSession),
	}
}

// EnsureReady confirms the gateway is reachable. Success is cached for the
// adapter's lifetime; a failure is not cached, so a later attempt probes
// again. Concurrent callers share a single probe.
func (a *Adapter) EnsureReady(ctx context.Context) error {
	if a.ready.Load() {
		return nil
	}

	_, err, _ := a.group.Do("readiness", func() (any, error) {
		if a.ready.Load() {
			return nil, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.CheckoutURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: checkout resource returned status %d", ErrGatewayUnavailable, resp.StatusCode)
		}
		a.ready.Store(true)
		return nil, nil
	})
	return err
}

// OpenCheckout registers a checkout session for the given handoff. The
// returned session's Completion channel fires at most once, and only for an
// authenticated successful payment.
func (a *Adapter) OpenCheckout(ctx context.Context, handoff *intent.GatewayHandoff, prefill Prefill, notes map[string]string) (*CheckoutSession, error) {
	if !a.ready.Load() {
		return nil, fmt.Errorf("%w: adapter not initialized", ErrGatewayUnavailable)
	}
	if handoff == nil || handoff.OrderID == "" {
		return nil, fmt.Errorf("gateway handoff missing order ID")
	}

	session := newCheckoutSession(handoff, prefill, notes)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.sessions[handoff.OrderID]; exists {
		return nil, fmt.Errorf("checkout session already open for order %s", handoff.OrderID)
	}
	a.sessions[handoff.OrderID] = session
	return session, nil
}

// Complete delivers a gateway completion to its checkout session. The
// payload is validated before delivery: identifiers must be present, the
// order must have an open session, and the signature must verify. A session
// receives at most one completion; the session is released on delivery.
func (a *Adapter) Complete(ev CompletionEvent) error {
	if ev.PaymentID == "" || ev.OrderID == "" {
		return fmt.Errorf("gateway completion missing identifiers")
	}
	if err := a.verifySignature(ev); err != nil {
		return err
	}

	a.mu.Lock()
	session, ok := a.sessions[ev.OrderID]
	if ok {
		delete(a.sessions, ev.OrderID)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("no open checkout session for order %s", ev.OrderID)
	}
	if !session.deliver(ev) {
		return fmt.Errorf("checkout session for order %s already completed", ev.OrderID)
	}
	return nil
}

// Abandon releases a session without completing it. Used when the
// orchestration attempt is abandoned (context cancellation) so the order ID
// can not receive a completion afterwards.
func (a *Adapter) Abandon(orderID string) {
	a.mu.Lock()
	delete(a.sessions, orderID)
	a.mu.Unlock()
}

// SessionInfo describes one open checkout session
type SessionInfo struct {
	OrderID        string
	SubscriptionID string
	OpenedAt       time.Time
}

// PendingSessions lists the sessions still waiting for a completion
func (a *Adapter) PendingSessions() []SessionInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	infos := make([]SessionInfo, 0, len(a.sessions))
	for _, s := range a.sessions {
		infos = append(infos, SessionInfo{
			OrderID:        s.handoff.OrderID,
			SubscriptionID: s.handoff.SubscriptionID,
			OpenedAt:       s.openedAt,
		})
	}
	return infos
}

// verifySignature checks the gateway's HMAC-SHA256 over "orderID|paymentID"
func (a *Adapter) verifySignature(ev CompletionEvent) error {
	if a.cfg.WebhookSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	fmt.Fprintf(mac, "%s|%s", ev.OrderID, ev.PaymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(ev.Signature)) {
		return fmt.Errorf("invalid gateway signature for order %s", ev.OrderID)
	}
	return nil
}

// SignCompletion computes the signature the gateway would attach to a
// completion for the given order and payment. Exposed for tests and for the
// operator CLI's local callback listener.
func SignCompletion(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}
