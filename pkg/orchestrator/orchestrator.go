package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/intent"
	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
	"github.com/meditrackpro/payments/pkg/session"
	"github.com/meditrackpro/payments/pkg/verification"
)

// State is the orchestrator's position in the checkout lifecycle
type State int

const (
	// StateIdle means Begin has not yet resolved the subscription lookup
	StateIdle State = iota
	// StateSelectingPlan means the tenant may pick a plan and settlement method
	StateSelectingPlan
	// StateCreatingIntent means the intent is being submitted upstream
	StateCreatingIntent
	// StateGatewayPending means a hosted checkout is open and awaiting completion
	StateGatewayPending
	// StateReporting means the settlement outcome is being verified upstream
	StateReporting
	// StateInstructingDirect means manual transfer instructions were issued
	StateInstructingDirect
	// StateFinalized means the checkout succeeded and the session was persisted
	StateFinalized
	// StateFailed means the attempt ended without a finalized checkout
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelectingPlan:
		return "selecting_plan"
	case StateCreatingIntent:
		return "creating_intent"
	case StateGatewayPending:
		return "gateway_pending"
	case StateReporting:
		return "reporting"
	case StateInstructingDirect:
		return "instructing_direct"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrPaymentInFlight means Pay was re-entered while an attempt was running
var ErrPaymentInFlight = errors.New("payment attempt already in flight")

// ErrLookupUnresolved means the subscription lookup has not produced a
// definite answer, so plan selection stays closed. The lookup may be retried.
var ErrLookupUnresolved = errors.New("subscription state unresolved")

// IntentService is the upstream boundary the orchestrator drives
type IntentService interface {
	CheckSubscription(ctx context.Context, tenantID string) (policy.SubscriptionState, error)
	CreateIntent(ctx context.Context, in *intent.Intent) (*intent.Receipt, error)
	SubmitVerification(ctx context.Context, subscriptionID string, status intent.PaymentStatus) error
}

// Gateway is the slice of the gateway adapter the orchestrator needs
type Gateway interface {
	EnsureReady(ctx context.Context) error
	OpenCheckout(ctx context.Context, handoff *intent.GatewayHandoff, prefill gateway.Prefill, notes map[string]string) (*gateway.CheckoutSession, error)
	Abandon(orderID string)
}

// Selection is the tenant's choice on the plan-selection surface
type Selection struct {
	Plan   pricing.Plan
	Cycle  pricing.BillingCycle
	Method policy.SettlementMethod
}

// DirectInstructions tells the tenant how to settle by manual transfer
type DirectInstructions struct {
	Amount    pricing.Paise `json:"amount"`
	Reference string        `json:"reference"` // quote on the transfer
	Deadline  time.Time     `json:"deadline"`
}

// Receipt is the outcome of a finalized checkout
type Receipt struct {
	SubscriptionID string
	Plan           pricing.Plan
	Cycle          pricing.BillingCycle
	Method         policy.SettlementMethod
	Amounts        pricing.Breakdown
	PaymentID      string              // prepaid only
	Instructions   *DirectInstructions // direct transfer only
	RedirectURL    string
}

// Config holds orchestrator configuration
type Config struct {
	// LoginRedirectURL is where the console sends the tenant after a
	// finalized checkout
	LoginRedirectURL string
	// DirectTransferWindow is how long a direct transfer may take before
	// the intent lapses
	DirectTransferWindow time.Duration
}

// DefaultDirectTransferWindow is the settlement window quoted on direct
// transfer instructions
const DefaultDirectTransferWindow = 7 * 24 * time.Hour

// Orchestrator runs one checkout attempt. Safe for concurrent use, though
// only a single Pay attempt may be in flight at a time.
type Orchestrator struct {
	intents  IntentService
	gateway  Gateway
	calc     *pricing.Calculator
	sessions session.Store
	cfg      Config

	inFlight atomic.Bool

	mu               sync.Mutex
	state            State
	tenant           policy.TenantContext
	failure          string
	onGatewayPending func(*gateway.CheckoutSession)
}

// New creates an orchestrator for a single checkout attempt
func New(intents IntentService, gw Gateway, calc *pricing.Calculator, sessions session.Store, cfg Config) *Orchestrator {
	if cfg.LoginRedirectURL == "" {
		cfg.LoginRedirectURL = "/login"
	}
	if cfg.DirectTransferWindow <= 0 {
		cfg.DirectTransferWindow = DefaultDirectTransferWindow
	}
	return &Orchestrator{
		intents:  intents,
		gateway:  gw,
		calc:     calc,
		sessions: sessions,
		cfg:      cfg,
	}
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Tenant returns the tenant context established by Begin
func (o *Orchestrator) Tenant() policy.TenantContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tenant
}

// FailureReason returns why the attempt failed, empty unless StateFailed
func (o *Orchestrator) FailureReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// OnGatewayPending registers a hook invoked when a hosted checkout session
// opens, so the caller can relay the handoff to the paying surface. Must be
// set before Pay.
func (o *Orchestrator) OnGatewayPending(fn func(*gateway.CheckoutSession)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onGatewayPending = fn
}

// Begin resolves the tenant's subscription state and opens plan selection.
// A failed lookup leaves the orchestrator idle and returns a retryable
// error; the lookup result is never guessed.
func (o *Orchestrator) Begin(ctx context.Context, tenant policy.TenantContext) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot begin checkout in state %s", state)
	}
	o.mu.Unlock()

	if tenant.TenantID == "" {
		return fmt.Errorf("checkout requires a tenant ID")
	}

	state, err := o.intents.CheckSubscription(ctx, tenant.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLookupUnresolved, err)
	}
	if state == policy.StateUnknown {
		return ErrLookupUnresolved
	}

	tenant.State = state

	o.mu.Lock()
	o.tenant = tenant
	o.state = StateSelectingPlan
	o.mu.Unlock()
	return nil
}

// AvailableMethods returns the settlement methods open to the tenant
func (o *Orchestrator) AvailableMethods() []policy.SettlementMethod {
	return policy.AvailableMethods(o.Tenant())
}

// DefaultMethod returns the pre-selected settlement method
func (o *Orchestrator) DefaultMethod() (policy.SettlementMethod, bool) {
	return policy.DefaultMethod(o.Tenant())
}

// Pay runs the settlement branch for the selection. It blocks until the
// attempt finalizes or fails; for the prepaid method that includes waiting
// for the gateway completion. Re-entry while an attempt is in flight is
// rejected with ErrPaymentInFlight.
func (o *Orchestrator) Pay(ctx context.Context, sel Selection) (*Receipt, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPaymentInFlight
	}
	defer o.inFlight.Store(false)

	o.mu.Lock()
	if o.state != StateSelectingPlan {
		state := o.state
		o.mu.Unlock()
		return nil, fmt.Errorf("cannot pay in state %s", state)
	}
	tenant := o.tenant
	o.mu.Unlock()

	if !sel.Method.Valid() {
		return nil, fmt.Errorf("unknown settlement method: %q", sel.Method)
	}
	if !policy.Allows(tenant, sel.Method) {
		return nil, fmt.Errorf("settlement method %s not available for %s tenant", sel.Method, tenant.State)
	}

	amounts, err := o.calc.Breakdown(sel.Plan, sel.Cycle)
	if err != nil {
		return nil, fmt.Errorf("invalid plan selection: %w", err)
	}

	// Prepaid confirms the gateway before any intent exists, so a failed
	// handshake never orphans an intent. The failure is retryable and
	// keeps the orchestrator in plan selection.
	if sel.Method == policy.MethodGatewayPrepaid {
		if err := o.gateway.EnsureReady(ctx); err != nil {
			return nil, err
		}
	}

	o.setState(StateCreatingIntent)

	receipt, err := o.intents.CreateIntent(ctx, &intent.Intent{
		TenantID:          tenant.TenantID,
		TenantName:        tenant.TenantName,
		AdminEmail:        tenant.AdminEmail,
		Plan:              sel.Plan,
		Cycle:             sel.Cycle,
		Method:            sel.Method,
		Amounts:           amounts,
		TaxRegistrationID: tenant.TaxRegistrationID,
	})
	if err != nil {
		return nil, o.fail("intent creation failed", err)
	}
	if receipt.SubscriptionID == "" {
		return nil, o.fail("intent creation failed", fmt.Errorf("intent receipt missing subscription ID"))
	}
	if receipt.TotalAmount != amounts.Total {
		return nil, o.fail("amount mismatch", fmt.Errorf(
			"server acknowledged %d paise, expected %d", receipt.TotalAmount, amounts.Total))
	}

	result := &Receipt{
		SubscriptionID: receipt.SubscriptionID,
		Plan:           sel.Plan,
		Cycle:          sel.Cycle,
		Method:         sel.Method,
		Amounts:        amounts,
		RedirectURL:    o.cfg.LoginRedirectURL,
	}

	switch sel.Method {
	case policy.MethodGatewayPrepaid:
		paymentID, err := o.settlePrepaid(ctx, tenant, receipt)
		if err != nil {
			return nil, err
		}
		result.PaymentID = paymentID

	case policy.MethodCashOnDelivery:
		o.setState(StateReporting)
		coordinator := verification.NewCoordinator(o.intents)
		if err := coordinator.SubmitPending(ctx, receipt.SubscriptionID); err != nil {
			return nil, o.fail("verification failed", err)
		}

	case policy.MethodDirectTransfer:
		// Manual settlement happens outside the system; no verification
		// call is ever made on this branch.
		o.setState(StateInstructingDirect)
		result.Instructions = &DirectInstructions{
			Amount:    amounts.Total,
			Reference: receipt.SubscriptionID,
			Deadline:  time.Now().Add(o.cfg.DirectTransferWindow),
		}
	}

	if err := o.finalize(ctx, tenant, result); err != nil {
		return nil, err
	}
	return result, nil
}

// settlePrepaid opens the hosted checkout, waits for its one-shot
// completion, and reports the payment upstream
func (o *Orchestrator) settlePrepaid(ctx context.Context, tenant policy.TenantContext, receipt *intent.Receipt) (string, error) {
	o.setState(StateGatewayPending)

	checkout, err := o.gateway.OpenCheckout(ctx, receipt.Handoff, gateway.Prefill{
		Name:  tenant.TenantName,
		Email: tenant.AdminEmail,
	}, map[string]string{
		"tenant_id":       tenant.TenantID,
		"subscription_id": receipt.SubscriptionID,
	})
	if err != nil {
		return "", o.fail("checkout open failed", err)
	}

	o.mu.Lock()
	hook := o.onGatewayPending
	o.mu.Unlock()
	if hook != nil {
		hook(checkout)
	}

	var completion gateway.CompletionEvent
	select {
	case completion = <-checkout.Completion():
	case <-ctx.Done():
		o.gateway.Abandon(checkout.OrderID())
		return "", o.fail("checkout abandoned", ctx.Err())
	}

	o.setState(StateReporting)
	coordinator := verification.NewCoordinator(o.intents)
	if err := coordinator.SubmitPaid(ctx, receipt.SubscriptionID); err != nil {
		return "", o.fail("verification failed", err)
	}
	return completion.PaymentID, nil
}

// finalize persists the tenant session and closes the attempt
func (o *Orchestrator) finalize(ctx context.Context, tenant policy.TenantContext, receipt *Receipt) error {
	err := o.sessions.SetTenant(ctx, session.TenantSession{
		TenantID:       tenant.TenantID,
		TenantName:     tenant.TenantName,
		SubscriptionID: receipt.SubscriptionID,
		Plan:           string(receipt.Plan),
		ActivatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return o.fail("session persist failed", err)
	}

	o.setState(StateFinalized)
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// fail moves the attempt to its terminal failed state and wraps the cause
func (o *Orchestrator) fail(reason string, err error) error {
	o.mu.Lock()
	o.state = StateFailed
	o.failure = reason
	o.mu.Unlock()
	return fmt.Errorf("%s: %w", reason, err)
}
