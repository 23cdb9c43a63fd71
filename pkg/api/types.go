package api

import (
	"github.com/meditrackpro/payments/pkg/orchestrator"
)

// CheckoutRequest is the body of POST /api/checkout
type CheckoutRequest struct {
	TenantID          string `json:"tenantId"`
	TenantName        string `json:"tenantName"`
	AdminEmail        string `json:"adminEmail"`
	TaxRegistrationID string `json:"taxRegistrationId,omitempty"`
	Plan              string `json:"plan"`
	BillingCycle      string `json:"billingCycle"`
	// Method is optional; empty selects the tenant's default method
	Method string `json:"method,omitempty"`
}

// GatewayCheckoutResponse is the 202 answer for a prepaid checkout: the
// handoff the console needs to open the gateway widget, plus where to poll
type GatewayCheckoutResponse struct {
	OrderID        string `json:"orderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	GatewayKey     string `json:"gatewayKey"`
	SubscriptionID string `json:"subscriptionId"`
	StatusURL      string `json:"statusUrl"`
}

// CheckoutReceipt is the finalized-checkout answer
type CheckoutReceipt struct {
	SubscriptionID string                           `json:"subscriptionId"`
	Plan           string                           `json:"plan"`
	BillingCycle   string                           `json:"billingCycle"`
	Method         string                           `json:"method"`
	BaseAmount     float64                          `json:"baseAmount"`
	TaxAmount      float64                          `json:"taxAmount"`
	TotalAmount    float64                          `json:"totalAmount"`
	PaymentID      string                           `json:"paymentId,omitempty"`
	Instructions   *orchestrator.DirectInstructions `json:"instructions,omitempty"`
	RedirectURL    string                           `json:"redirectUrl"`
}

// CheckoutStatus is the GET /api/checkout/{order_id} answer while a prepaid
// attempt is in flight and after it resolves
type CheckoutStatus struct {
	State   string           `json:"state"`
	Receipt *CheckoutReceipt `json:"receipt,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// PlanQuote is one catalog entry with its tax-inclusive amounts
type PlanQuote struct {
	Plan         string  `json:"plan"`
	BillingCycle string  `json:"billingCycle"`
	BaseAmount   float64 `json:"baseAmount"`
	TaxAmount    float64 `json:"taxAmount"`
	TotalAmount  float64 `json:"totalAmount"`
}

func receiptFromOrchestrator(r *orchestrator.Receipt) *CheckoutReceipt {
	return &CheckoutReceipt{
		SubscriptionID: r.SubscriptionID,
		Plan:           string(r.Plan),
		BillingCycle:   string(r.Cycle),
		Method:         string(r.Method),
		BaseAmount:     r.Amounts.Base.Rupees(),
		TaxAmount:      r.Amounts.Tax.Rupees(),
		TotalAmount:    r.Amounts.Total.Rupees(),
		PaymentID:      r.PaymentID,
		Instructions:   r.Instructions,
		RedirectURL:    r.RedirectURL,
	}
}
