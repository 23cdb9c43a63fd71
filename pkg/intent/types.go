package intent

import (
	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
)

// Intent is one pending purchase attempt, created exactly once per
// orchestration run and never mutated afterwards.
type Intent struct {
	TenantID          string
	TenantName        string
	AdminEmail        string
	Plan              pricing.Plan
	Cycle             pricing.BillingCycle
	Method            policy.SettlementMethod
	Amounts           pricing.Breakdown
	TaxRegistrationID string // empty when the tenant has no GSTIN
}

// GatewayHandoff carries everything needed to open one hosted checkout
// session. Present only for the prepaid method.
type GatewayHandoff struct {
	OrderID        string
	Amount         pricing.Paise // gateway subunit amount
	Currency       string
	GatewayKey     string
	SubscriptionID string
}

// Receipt is the server's acknowledgement of a created intent. The
// SubscriptionID is the join key for every subsequent step.
type Receipt struct {
	SubscriptionID string
	TotalAmount    pricing.Paise
	Handoff        *GatewayHandoff // nil unless Method == prepaid
}

// PaymentStatus is the settlement outcome reported to the server
type PaymentStatus string

const (
	// StatusPaid means the gateway confirmed the payment
	StatusPaid PaymentStatus = "paid"
	// StatusPending means collection is due later (cash on delivery)
	StatusPending PaymentStatus = "pending"
)

// missingTaxID is the literal the wire protocol uses for an absent GSTIN
const missingTaxID = "N/A"

// paymentRequest is the POST /payment body
type paymentRequest struct {
	TenantID          string  `json:"tenantId"`
	Plan              string  `json:"plan"`
	Method            string  `json:"method"`
	TenantName        string  `json:"tenantName"`
	AdminEmail        string  `json:"adminEmail"`
	BillingCycle      string  `json:"billingCycle"`
	BaseAmount        float64 `json:"baseAmount"`
	TotalAmount       float64 `json:"totalAmount"`
	TaxRegistrationID string  `json:"taxRegistrationId"`
}

// paymentResponse covers both response shapes of POST /payment; the gateway
// fields are only set for the prepaid method.
type paymentResponse struct {
	SubscriptionID string  `json:"subscriptionId"`
	TotalAmount    float64 `json:"totalAmount"`
	OrderID        string  `json:"orderId"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	GatewayKey     string  `json:"gatewayKey"`
}

// verifyRequest is the POST /verify-payment body
type verifyRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	PaymentStatus  string `json:"paymentStatus"`
}

// subscriptionResponse is the GET /subscriptions/{tenantId} body; the
// subscription field is omitted entirely when the tenant has none.
type subscriptionResponse struct {
	Subscription map[string]any `json:"subscription"`
}
