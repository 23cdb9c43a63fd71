package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meditrackpro/payments/pkg/api"
	"github.com/meditrackpro/payments/pkg/gateway"
)

// checkoutctl drives one checkout against a running payments daemon. With
// -simulate-gateway it also plays the gateway: it signs a completion with
// the daemon's webhook secret and posts it to the callback endpoint, which
// makes the whole prepaid flow runnable without a real gateway account.

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Payments daemon base URL")
	tenantID := flag.String("tenant", "", "Tenant ID (required)")
	tenantName := flag.String("name", "", "Tenant display name (required)")
	adminEmail := flag.String("email", "", "Admin email (required)")
	gstin := flag.String("gstin", "", "GST registration number (optional)")
	plan := flag.String("plan", "basic", "Plan: basic, professional or enterprise")
	cycle := flag.String("cycle", "monthly", "Billing cycle: monthly or yearly")
	method := flag.String("method", "", "Settlement method: prepaid, cod or direct (empty uses the tenant default)")
	simulate := flag.Bool("simulate-gateway", false, "Sign and post the gateway completion locally")
	secret := flag.String("webhook-secret", "", "Webhook secret for -simulate-gateway")
	timeout := flag.Duration("timeout", 2*time.Minute, "How long to wait for the checkout to finalize")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *tenantID == "" || *tenantName == "" || *adminEmail == "" {
		log.Fatal("-tenant, -name and -email are required")
	}
	if *simulate && *secret == "" {
		log.Fatal("-simulate-gateway requires -webhook-secret")
	}

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}

	quotes, err := c.listPlans()
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch plans")
	}
	for _, q := range quotes {
		log.WithFields(logrus.Fields{
			"plan":  q.Plan,
			"cycle": q.BillingCycle,
			"total": fmt.Sprintf("%.2f INR", q.TotalAmount),
		}).Debug("Catalog entry")
	}

	req := api.CheckoutRequest{
		TenantID:          *tenantID,
		TenantName:        *tenantName,
		AdminEmail:        *adminEmail,
		TaxRegistrationID: *gstin,
		Plan:              *plan,
		BillingCycle:      *cycle,
		Method:            *method,
	}
	log.WithFields(logrus.Fields{
		"tenant": req.TenantID,
		"plan":   req.Plan,
		"cycle":  req.BillingCycle,
	}).Info("Starting checkout")

	status, body, err := c.post("/api/checkout", req)
	if err != nil {
		log.WithError(err).Fatal("Checkout request failed")
	}

	switch status {
	case http.StatusOK:
		var receipt api.CheckoutReceipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			log.WithError(err).Fatal("Failed to decode receipt")
		}
		printReceipt(log, &receipt)

	case http.StatusAccepted:
		var handoff api.GatewayCheckoutResponse
		if err := json.Unmarshal(body, &handoff); err != nil {
			log.WithError(err).Fatal("Failed to decode gateway handoff")
		}
		log.WithFields(logrus.Fields{
			"order_id": handoff.OrderID,
			"amount":   handoff.Amount,
			"currency": handoff.Currency,
		}).Info("Gateway checkout opened")

		if *simulate {
			if err := c.simulateCompletion(*secret, handoff.OrderID); err != nil {
				log.WithError(err).Fatal("Gateway completion rejected")
			}
			log.Info("Posted simulated gateway completion")
		} else {
			log.Info("Waiting for the gateway to report completion")
		}

		receipt, err := c.pollStatus(handoff.StatusURL, *timeout)
		if err != nil {
			log.WithError(err).Fatal("Checkout did not finalize")
		}
		printReceipt(log, receipt)

	default:
		log.WithFields(logrus.Fields{
			"status": status,
			"body":   strings.TrimSpace(string(body)),
		}).Fatal("Checkout rejected")
	}
}

type client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func (c *client) listPlans() ([]api.PlanQuote, error) {
	resp, err := c.http.Get(c.baseURL + "/api/plans")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plans endpoint answered %d", resp.StatusCode)
	}
	var body struct {
		Plans []api.PlanQuote `json:"plans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Plans, nil
}

func (c *client) post(path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// simulateCompletion plays the gateway side of the handshake
func (c *client) simulateCompletion(secret, orderID string) error {
	paymentID := fmt.Sprintf("pay_sim_%d", time.Now().UnixNano())
	ev := gateway.CompletionEvent{
		PaymentID: paymentID,
		OrderID:   orderID,
		Signature: gateway.SignCompletion(secret, orderID, paymentID),
	}
	status, body, err := c.post("/api/gateway/callback", ev)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("callback answered %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

// pollStatus polls the checkout status URL until it leaves gateway_pending
func (c *client) pollStatus(statusURL string, timeout time.Duration) (*api.CheckoutReceipt, error) {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := c.http.Get(c.baseURL + statusURL)
		if err != nil {
			return nil, err
		}
		var status api.CheckoutStatus
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		switch status.State {
		case "finalized":
			return status.Receipt, nil
		case "failed":
			return nil, fmt.Errorf("checkout failed: %s", status.Error)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("still %s after %s", status.State, timeout)
		}
		c.log.Debug("Checkout still pending")
		time.Sleep(2 * time.Second)
	}
}

func printReceipt(log *logrus.Logger, r *api.CheckoutReceipt) {
	fields := logrus.Fields{
		"subscription_id": r.SubscriptionID,
		"method":          r.Method,
		"total":           fmt.Sprintf("%.2f INR", r.TotalAmount),
		"redirect":        r.RedirectURL,
	}
	if r.PaymentID != "" {
		fields["payment_id"] = r.PaymentID
	}
	log.WithFields(fields).Info("Checkout finalized")

	if r.Instructions != nil {
		log.WithFields(logrus.Fields{
			"amount":    r.Instructions.Amount,
			"reference": r.Instructions.Reference,
			"deadline":  r.Instructions.Deadline.Format(time.RFC3339),
		}).Info("Transfer these funds to activate the subscription")
	}
}
