package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
)

// Client talks to the IntentService over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the IntentService at baseURL. The outbound
// transport is traced with otelhttp.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CheckSubscription performs the existing-subscription lookup for a tenant.
// A transport or server failure yields StateUnknown together with the
// classified error; it is never coerced into StateNew.
func (c *Client) CheckSubscription(ctx context.Context, tenantID string) (policy.SubscriptionState, error) {
	endpoint := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, url.PathEscape(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return policy.StateUnknown, fmt.Errorf("failed to build subscription request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return policy.StateUnknown, &NetworkError{Op: "check subscription", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return policy.StateUnknown, c.serverError("check subscription", resp)
	}

	var body subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return policy.StateUnknown, &NetworkError{Op: "check subscription", Err: err}
	}

	if body.Subscription != nil {
		return policy.StateRenewal, nil
	}
	return policy.StateNew, nil
}

// CreateIntent submits a subscription intent and returns the server's
// receipt. For the prepaid method the receipt includes a gateway handoff.
func (c *Client) CreateIntent(ctx context.Context, in *Intent) (*Receipt, error) {
	taxID := in.TaxRegistrationID
	if taxID == "" {
		taxID = missingTaxID
	}

	payload := paymentRequest{
		TenantID:          in.TenantID,
		Plan:              string(in.Plan),
		Method:            string(in.Method),
		TenantName:        in.TenantName,
		AdminEmail:        in.AdminEmail,
		BillingCycle:      string(in.Cycle),
		BaseAmount:        in.Amounts.Base.Rupees(),
		TotalAmount:       in.Amounts.Total.Rupees(),
		TaxRegistrationID: taxID,
	}

	var body paymentResponse
	if err := c.post(ctx, "create intent", "/payment", payload, &body); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		SubscriptionID: body.SubscriptionID,
		TotalAmount:    pricing.Paise(math.Round(body.TotalAmount * 100)),
	}

	if in.Method == policy.MethodGatewayPrepaid {
		if body.OrderID == "" || body.GatewayKey == "" {
			return nil, &ServerError{
				Op:         "create intent",
				StatusCode: http.StatusOK,
				Message:    "prepaid intent response missing gateway handoff",
			}
		}
		receipt.Handoff = &GatewayHandoff{
			OrderID:        body.OrderID,
			Amount:         pricing.Paise(body.Amount),
			Currency:       body.Currency,
			GatewayKey:     body.GatewayKey,
			SubscriptionID: body.SubscriptionID,
		}
		receipt.TotalAmount = receipt.Handoff.Amount
	}

	return receipt, nil
}

// SubmitVerification reports a settlement outcome for a subscription
func (c *Client) SubmitVerification(ctx context.Context, subscriptionID string, status PaymentStatus) error {
	payload := verifyRequest{
		SubscriptionID: subscriptionID,
		PaymentStatus:  string(status),
	}
	return c.post(ctx, "verify payment", "/verify-payment", payload, nil)
}

// post sends a JSON body and optionally decodes a JSON response
func (c *Client) post(ctx context.Context, op, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.serverError(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: op, Err: err}
		}
	}
	return nil
}

// serverError extracts the server-provided error message when there is one
func (c *Client) serverError(op string, resp *http.Response) *ServerError {
	message := genericServerMessage
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
	}
	return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: message}
}
