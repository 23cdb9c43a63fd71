package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/httputil"
	"github.com/meditrackpro/payments/pkg/intent"
	"github.com/meditrackpro/payments/pkg/observability"
	"github.com/meditrackpro/payments/pkg/orchestrator"
	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
)

// checkout state labels served by the status endpoint
const (
	statusGatewayPending = "gateway_pending"
	statusFinalized      = "finalized"
	statusFailed         = "failed"
)

// listPlans serves the catalog with tax-inclusive amounts for the plan
// selection surface
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := []pricing.Plan{pricing.PlanBasic, pricing.PlanProfessional, pricing.PlanEnterprise}
	cycles := []pricing.BillingCycle{pricing.CycleMonthly, pricing.CycleYearly}

	quotes := make([]PlanQuote, 0, len(plans)*len(cycles))
	for _, plan := range plans {
		for _, cycle := range cycles {
			b, err := s.calc.Breakdown(plan, cycle)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			quotes = append(quotes, PlanQuote{
				Plan:         string(plan),
				BillingCycle: string(cycle),
				BaseAmount:   b.Base.Rupees(),
				TaxAmount:    b.Tax.Rupees(),
				TotalAmount:  b.Total.Rupees(),
			})
		}
	}

	httputil.WriteSuccess(w, map[string]any{"plans": quotes})
}

// startCheckout runs one checkout attempt. Prepaid answers 202 with the
// gateway handoff and finishes in the background; cash-on-delivery and
// direct transfer finish synchronously.
func (s *Server) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TenantID, "tenantId") ||
		!httputil.RequireNonEmpty(w, req.TenantName, "tenantName") ||
		!httputil.RequireNonEmpty(w, req.AdminEmail, "adminEmail") ||
		!httputil.RequireNonEmpty(w, req.Plan, "plan") ||
		!httputil.RequireNonEmpty(w, req.BillingCycle, "billingCycle") {
		return
	}

	ctx := observability.WithTenantID(r.Context(), req.TenantID)
	logger := observability.FromContext(ctx)

	orch := s.newOrchestrator()
	if err := orch.Begin(ctx, policy.TenantContext{
		TenantID:          req.TenantID,
		TenantName:        req.TenantName,
		AdminEmail:        req.AdminEmail,
		TaxRegistrationID: req.TaxRegistrationID,
	}); err != nil {
		logger.WithError(err).Warn("subscription lookup failed")
		s.writeCheckoutError(w, err)
		return
	}

	sel := orchestrator.Selection{
		Plan:  pricing.Plan(req.Plan),
		Cycle: pricing.BillingCycle(req.BillingCycle),
	}
	if req.Method != "" {
		sel.Method = policy.SettlementMethod(req.Method)
	} else {
		method, ok := orch.DefaultMethod()
		if !ok {
			httputil.WriteBadRequest(w, "no settlement method available")
			return
		}
		sel.Method = method
	}

	if sel.Method == policy.MethodGatewayPrepaid {
		s.startPrepaidCheckout(w, logger, orch, sel)
		return
	}

	start := time.Now()
	receipt, err := orch.Pay(ctx, sel)
	s.recordAttempt(sel.Method, err, time.Since(start))
	if err != nil {
		logger.WithError(err).Warn("checkout failed")
		s.writeCheckoutError(w, err)
		return
	}

	logger.WithField("subscription_id", receipt.SubscriptionID).Info("checkout finalized")
	httputil.WriteSuccess(w, receiptFromOrchestrator(receipt))
}

// startPrepaidCheckout answers with the gateway handoff once the hosted
// checkout opens and lets the attempt finish in the background. The
// eventual outcome lands in the receipt cache under the gateway order ID.
func (s *Server) startPrepaidCheckout(w http.ResponseWriter, logger *observability.Logger, orch *orchestrator.Orchestrator, sel orchestrator.Selection) {
	handoffCh := make(chan *gateway.CheckoutSession, 1)
	errCh := make(chan error, 1)

	// orderID is written by the hook and read after Pay returns, both in
	// the same goroutine
	var orderID string
	orch.OnGatewayPending(func(cs *gateway.CheckoutSession) {
		orderID = cs.OrderID()
		s.receipts.Add(orderID, &CheckoutStatus{State: statusGatewayPending})
		s.updatePendingGauge()
		handoffCh <- cs
	})

	start := time.Now()
	go func() {
		defer observability.RecoverPanic(logger, "prepaid checkout attempt")

		// The hosted checkout outlives the originating HTTP request, so
		// the attempt runs on its own context. There is no deadline: the
		// gateway has no cancel event, and unfinished sessions are
		// observed by the stale-session sweep instead.
		receipt, err := orch.Pay(context.Background(), sel)
		s.recordAttempt(sel.Method, err, time.Since(start))
		s.updatePendingGauge()
		if orderID != "" {
			if err != nil {
				s.receipts.Add(orderID, &CheckoutStatus{State: statusFailed, Error: err.Error()})
			} else {
				s.receipts.Add(orderID, &CheckoutStatus{State: statusFinalized, Receipt: receiptFromOrchestrator(receipt)})
			}
		}
		if err != nil {
			logger.WithError(err).Warn("prepaid checkout failed")
		} else {
			logger.WithField("subscription_id", receipt.SubscriptionID).Info("prepaid checkout finalized")
		}
		errCh <- err
	}()

	select {
	case cs := <-handoffCh:
		h := cs.Handoff()
		httputil.WriteAccepted(w, GatewayCheckoutResponse{
			OrderID:        h.OrderID,
			Amount:         int64(h.Amount),
			Currency:       h.Currency,
			GatewayKey:     h.GatewayKey,
			SubscriptionID: h.SubscriptionID,
			StatusURL:      fmt.Sprintf("/api/checkout/%s", h.OrderID),
		})
	case err := <-errCh:
		s.writeCheckoutError(w, err)
	}
}

// checkoutStatus serves the cached outcome of a prepaid checkout
func (s *Server) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParsePathStringOrError(w, r, "order_id")
	if !ok {
		return
	}

	status, found := s.receipts.Get(orderID)
	if !found {
		httputil.WriteNotFound(w, fmt.Sprintf("no checkout for order %s", orderID))
		return
	}
	httputil.WriteSuccess(w, status)
}

// gatewayCallback receives gateway completion webhooks and routes them to
// the waiting checkout session
func (s *Server) gatewayCallback(w http.ResponseWriter, r *http.Request) {
	var ev gateway.CompletionEvent
	if !httputil.ParseJSONOrError(w, r, &ev) {
		return
	}

	logger := observability.FromContext(r.Context()).WithField("order_id", ev.OrderID)

	if err := s.gateway.Complete(ev); err != nil {
		logger.WithError(err).Warn("gateway completion rejected")
		if s.metrics != nil {
			s.metrics.GatewayCompletionsTotal.WithLabelValues("rejected").Inc()
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	logger.Info("gateway completion accepted")
	if s.metrics != nil {
		s.metrics.GatewayCompletionsTotal.WithLabelValues("accepted").Inc()
	}
	s.updatePendingGauge()
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// recordAttempt updates the checkout metrics for one finished attempt
func (s *Server) recordAttempt(method policy.SettlementMethod, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := statusFinalized
	if err != nil {
		outcome = statusFailed
	}
	s.metrics.CheckoutAttemptsTotal.WithLabelValues(string(method), outcome).Inc()
	s.metrics.CheckoutDuration.WithLabelValues(string(method)).Observe(elapsed.Seconds())
}

func (s *Server) updatePendingGauge() {
	if s.metrics == nil {
		return
	}
	s.metrics.GatewaySessionsPending.Set(float64(len(s.gateway.PendingSessions())))
}

// writeCheckoutError maps domain errors onto HTTP status codes
func (s *Server) writeCheckoutError(w http.ResponseWriter, err error) {
	var serverErr *intent.ServerError
	var netErr *intent.NetworkError

	switch {
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		if s.metrics != nil {
			s.metrics.GatewayReadinessFailures.Inc()
		}
		httputil.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, orchestrator.ErrLookupUnresolved):
		httputil.WriteBadGateway(w, err.Error())
	case errors.Is(err, orchestrator.ErrPaymentInFlight):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &serverErr), errors.As(err, &netErr):
		httputil.WriteBadGateway(w, err.Error())
	default:
		httputil.WriteBadRequest(w, err.Error())
	}
}
