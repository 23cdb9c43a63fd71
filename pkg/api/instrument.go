package api

import (
	"context"
	"time"

	"github.com/meditrackpro/payments/pkg/intent"
	"github.com/meditrackpro/payments/pkg/observability"
	"github.com/meditrackpro/payments/pkg/orchestrator"
	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/session"
)

// instrumentedIntents wraps the IntentService client with upstream metrics
type instrumentedIntents struct {
	next    orchestrator.IntentService
	metrics *observability.Metrics
}

func instrumentIntents(next orchestrator.IntentService, metrics *observability.Metrics) orchestrator.IntentService {
	if metrics == nil {
		return next
	}
	return &instrumentedIntents{next: next, metrics: metrics}
}

func (i *instrumentedIntents) record(operation string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()
	i.metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (i *instrumentedIntents) CheckSubscription(ctx context.Context, tenantID string) (policy.SubscriptionState, error) {
	start := time.Now()
	state, err := i.next.CheckSubscription(ctx, tenantID)
	i.record("check_subscription", err, time.Since(start))
	return state, err
}

func (i *instrumentedIntents) CreateIntent(ctx context.Context, in *intent.Intent) (*intent.Receipt, error) {
	start := time.Now()
	receipt, err := i.next.CreateIntent(ctx, in)
	i.record("create_intent", err, time.Since(start))
	return receipt, err
}

func (i *instrumentedIntents) SubmitVerification(ctx context.Context, subscriptionID string, status intent.PaymentStatus) error {
	start := time.Now()
	err := i.next.SubmitVerification(ctx, subscriptionID, status)
	i.record("submit_verification", err, time.Since(start))

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.metrics.VerificationsTotal.WithLabelValues(string(status), outcome).Inc()
	return err
}

// instrumentedSessions wraps the session store with write metrics
type instrumentedSessions struct {
	session.Store
	metrics *observability.Metrics
}

func instrumentSessions(next session.Store, metrics *observability.Metrics) session.Store {
	if metrics == nil {
		return next
	}
	return &instrumentedSessions{Store: next, metrics: metrics}
}

func (s *instrumentedSessions) SetTenant(ctx context.Context, sess session.TenantSession) error {
	err := s.Store.SetTenant(ctx, sess)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.SessionWritesTotal.WithLabelValues(status).Inc()
	return err
}
