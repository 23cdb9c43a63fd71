package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/intent"
	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
	"github.com/meditrackpro/payments/pkg/session"
)

type verificationCall struct {
	SubscriptionID string
	Status         intent.PaymentStatus
}

// fakeIntentService scripts the upstream IntentService for orchestrator tests
type fakeIntentService struct {
	mu sync.Mutex

	subscriptionState policy.SubscriptionState
	lookupErr         error

	receipt     *intent.Receipt
	createErr   error
	createGate  chan struct{} // when set, CreateIntent blocks until closed
	createCalls int
	lastIntent  *intent.Intent

	verifyErr     error
	verifications []verificationCall
}

func (f *fakeIntentService) CheckSubscription(_ context.Context, _ string) (policy.SubscriptionState, error) {
	if f.lookupErr != nil {
		return policy.StateUnknown, f.lookupErr
	}
	return f.subscriptionState, nil
}

func (f *fakeIntentService) CreateIntent(_ context.Context, in *intent.Intent) (*intent.Receipt, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastIntent = in
	gate := f.createGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.receipt, nil
}

func (f *fakeIntentService) SubmitVerification(_ context.Context, subscriptionID string, status intent.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return f.verifyErr
	}
	f.verifications = append(f.verifications, verificationCall{subscriptionID, status})
	return nil
}

func (f *fakeIntentService) verificationCalls() []verificationCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]verificationCall(nil), f.verifications...)
}

const webhookSecret = "test-secret"

// readyGateway returns an adapter whose readiness probe always succeeds
func readyGateway(t *testing.T) *gateway.Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return gateway.NewAdapter(gateway.Config{CheckoutURL: srv.URL, WebhookSecret: webhookSecret})
}

func testTenant() policy.TenantContext {
	return policy.TenantContext{
		TenantID:   "tenant_42",
		TenantName: "City Care Hospital",
		AdminEmail: "admin@citycare.example",
	}
}

func codReceipt(total pricing.Paise) *intent.Receipt {
	return &intent.Receipt{SubscriptionID: "sub_42", TotalAmount: total}
}

func prepaidReceipt(total pricing.Paise) *intent.Receipt {
	return &intent.Receipt{
		SubscriptionID: "sub_42",
		TotalAmount:    total,
		Handoff: &intent.GatewayHandoff{
			OrderID:        "order_42",
			Amount:         total,
			Currency:       "INR",
			GatewayKey:     "rzp_test_key",
			SubscriptionID: "sub_42",
		},
	}
}

func newTestOrchestrator(t *testing.T, intents IntentService, gw Gateway) (*Orchestrator, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	calc := pricing.NewCalculator(pricing.DefaultCatalog())
	return New(intents, gw, calc, store, Config{LoginRedirectURL: "/login"}), store
}

func TestBeginResolvesSubscriptionState(t *testing.T) {
	tests := []struct {
		name  string
		state policy.SubscriptionState
	}{
		{"new tenant", policy.StateNew},
		{"renewal tenant", policy.StateRenewal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeIntentService{subscriptionState: tt.state}
			o, _ := newTestOrchestrator(t, svc, readyGateway(t))

			require.NoError(t, o.Begin(context.Background(), testTenant()))
			assert.Equal(t, StateSelectingPlan, o.State())
			assert.Equal(t, tt.state, o.Tenant().State)
		})
	}
}

func TestBeginLookupFailureIsRetryable(t *testing.T) {
	svc := &fakeIntentService{lookupErr: &intent.NetworkError{Op: "check subscription", Err: errors.New("refused")}}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))

	err := o.Begin(context.Background(), testTenant())
	require.ErrorIs(t, err, ErrLookupUnresolved)

	var netErr *intent.NetworkError
	assert.ErrorAs(t, err, &netErr)

	// Still idle: a later Begin may retry the lookup
	assert.Equal(t, StateIdle, o.State())

	svc.lookupErr = nil
	svc.subscriptionState = policy.StateNew
	require.NoError(t, o.Begin(context.Background(), testTenant()))
	assert.Equal(t, StateSelectingPlan, o.State())
}

func TestBeginRequiresTenantID(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))

	err := o.Begin(context.Background(), policy.TenantContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant ID")
}

func TestMethodsFollowSubscriptionState(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateRenewal}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	assert.Equal(t, []policy.SettlementMethod{policy.MethodDirectTransfer}, o.AvailableMethods())
	method, ok := o.DefaultMethod()
	require.True(t, ok)
	assert.Equal(t, policy.MethodDirectTransfer, method)
}

func TestPayRejectedBeforeBegin(t *testing.T) {
	svc := &fakeIntentService{}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot pay in state idle")
}

func TestPayRejectsDisallowedMethod(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateRenewal}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodGatewayPrepaid,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available for renewal tenant")
	assert.Equal(t, 0, svc.createCalls)
}

func TestPaySingleFlight(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeIntentService{
		subscriptionState: policy.StateNew,
		receipt:           codReceipt(589882),
		createGate:        gate,
	}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	sel := Selection{Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery}

	done := make(chan error, 1)
	go func() {
		_, err := o.Pay(context.Background(), sel)
		done <- err
	}()

	// Wait until the first attempt is inside CreateIntent
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.createCalls == 1
	}, time.Second, 5*time.Millisecond)

	_, err := o.Pay(context.Background(), sel)
	assert.ErrorIs(t, err, ErrPaymentInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateFinalized, o.State())
}

func TestCashOnDeliveryFlow(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: codReceipt(589882)}
	o, store := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	receipt, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery,
	})
	require.NoError(t, err)

	assert.Equal(t, "sub_42", receipt.SubscriptionID)
	assert.Equal(t, pricing.Paise(589882), receipt.Amounts.Total)
	assert.Equal(t, "/login", receipt.RedirectURL)
	assert.Nil(t, receipt.Instructions)
	assert.Equal(t, StateFinalized, o.State())

	calls := svc.verificationCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, verificationCall{"sub_42", intent.StatusPending}, calls[0])

	stored, err := store.GetTenant(context.Background(), "tenant_42")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sub_42", stored.SubscriptionID)
	assert.Equal(t, "basic", stored.Plan)
}

func TestDirectTransferFlow(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateRenewal, receipt: codReceipt(11326820)}
	o, store := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	before := time.Now()
	receipt, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanProfessional, Cycle: pricing.CycleYearly, Method: policy.MethodDirectTransfer,
	})
	require.NoError(t, err)

	require.NotNil(t, receipt.Instructions)
	assert.Equal(t, pricing.Paise(11326820), receipt.Instructions.Amount)
	assert.Equal(t, "sub_42", receipt.Instructions.Reference)
	assert.WithinDuration(t, before.Add(DefaultDirectTransferWindow), receipt.Instructions.Deadline, time.Minute)

	// Direct transfers never produce a verification call
	assert.Empty(t, svc.verificationCalls())
	assert.Equal(t, StateFinalized, o.State())

	stored, err := store.GetTenant(context.Background(), "tenant_42")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestPrepaidFlow(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: prepaidReceipt(589882)}
	gw := readyGateway(t)
	o, store := newTestOrchestrator(t, svc, gw)
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	// Simulate the gateway webhook once the checkout session opens
	o.OnGatewayPending(func(s *gateway.CheckoutSession) {
		go func() {
			err := gw.Complete(gateway.CompletionEvent{
				PaymentID: "pay_42",
				OrderID:   s.OrderID(),
				Signature: gateway.SignCompletion(webhookSecret, s.OrderID(), "pay_42"),
			})
			assert.NoError(t, err)
		}()
	})

	receipt, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodGatewayPrepaid,
	})
	require.NoError(t, err)

	assert.Equal(t, "pay_42", receipt.PaymentID)
	assert.Equal(t, StateFinalized, o.State())

	calls := svc.verificationCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, verificationCall{"sub_42", intent.StatusPaid}, calls[0])

	stored, err := store.GetTenant(context.Background(), "tenant_42")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "City Care Hospital", stored.TenantName)
}

func TestPrepaidGatewayUnavailableKeepsSelection(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: prepaidReceipt(589882)}
	gw := gateway.NewAdapter(gateway.Config{CheckoutURL: "http://127.0.0.1:1", HTTPTimeout: 500 * time.Millisecond})
	o, _ := newTestOrchestrator(t, svc, gw)
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodGatewayPrepaid,
	})
	require.ErrorIs(t, err, gateway.ErrGatewayUnavailable)

	// No intent was created and the tenant may retry from plan selection
	assert.Equal(t, 0, svc.createCalls)
	assert.Equal(t, StateSelectingPlan, o.State())
}

func TestPrepaidCancelledWhilePendingAbandonsCheckout(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: prepaidReceipt(589882)}
	gw := readyGateway(t)
	o, store := newTestOrchestrator(t, svc, gw)
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	ctx, cancel := context.WithCancel(context.Background())
	o.OnGatewayPending(func(*gateway.CheckoutSession) { cancel() })

	_, err := o.Pay(ctx, Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodGatewayPrepaid,
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, "checkout abandoned", o.FailureReason())
	assert.Empty(t, gw.PendingSessions())
	assert.Empty(t, svc.verificationCalls())

	stored, err := store.GetTenant(context.Background(), "tenant_42")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestIntentNetworkErrorFailsAttempt(t *testing.T) {
	svc := &fakeIntentService{
		subscriptionState: policy.StateNew,
		createErr:         &intent.NetworkError{Op: "create intent", Err: errors.New("connection reset")},
	}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery,
	})
	require.Error(t, err)

	var netErr *intent.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, "intent creation failed", o.FailureReason())
	assert.Empty(t, svc.verificationCalls())
}

func TestAmountMismatchFailsAttempt(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: codReceipt(100)}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount mismatch")
	assert.Equal(t, StateFailed, o.State())
	assert.Empty(t, svc.verificationCalls())
}

func TestPayNotRetriedAfterFailure(t *testing.T) {
	svc := &fakeIntentService{
		subscriptionState: policy.StateNew,
		createErr:         errors.New("boom"),
	}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))
	require.NoError(t, o.Begin(context.Background(), testTenant()))

	sel := Selection{Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery}
	_, err := o.Pay(context.Background(), sel)
	require.Error(t, err)

	// A failed attempt is terminal for this orchestrator
	_, err = o.Pay(context.Background(), sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot pay in state failed")
}

func TestIntentCarriesSelectionAndTenant(t *testing.T) {
	svc := &fakeIntentService{subscriptionState: policy.StateNew, receipt: codReceipt(11798)}
	o, _ := newTestOrchestrator(t, svc, readyGateway(t))

	tenant := testTenant()
	tenant.TaxRegistrationID = "27AAPFU0939F1ZV"
	require.NoError(t, o.Begin(context.Background(), tenant))

	_, err := o.Pay(context.Background(), Selection{
		Plan: pricing.PlanBasic, Cycle: pricing.CycleMonthly, Method: policy.MethodCashOnDelivery,
	})
	require.Error(t, err) // mismatched scripted total, the intent was still sent

	in := svc.lastIntent
	require.NotNil(t, in)
	assert.Equal(t, "tenant_42", in.TenantID)
	assert.Equal(t, pricing.PlanBasic, in.Plan)
	assert.Equal(t, pricing.CycleMonthly, in.Cycle)
	assert.Equal(t, policy.MethodCashOnDelivery, in.Method)
	assert.Equal(t, "27AAPFU0939F1ZV", in.TaxRegistrationID)
	assert.Equal(t, pricing.Paise(499900), in.Amounts.Base)
	assert.Equal(t, pricing.Paise(589882), in.Amounts.Total)
}
