package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrackpro/payments/pkg/policy"
	"github.com/meditrackpro/payments/pkg/pricing"
)

func testIntent(method policy.SettlementMethod) *Intent {
	return &Intent{
		TenantID:   "hosp-42",
		TenantName: "City Care Hospital",
		AdminEmail: "admin@citycare.example",
		Plan:       pricing.PlanBasic,
		Cycle:      pricing.CycleMonthly,
		Method:     method,
		Amounts: pricing.Breakdown{
			Base:  pricing.FromRupees(4999),
			Tax:   89982,
			Total: 589882,
		},
	}
}

func TestCheckSubscription(t *testing.T) {
	t.Run("existing subscription means renewal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/subscriptions/hosp-42", r.URL.Path)
			w.Write([]byte(`{"subscription":{"plan":"basic","status":"active"}}`))
		}))
		defer srv.Close()

		state, err := NewClient(srv.URL, time.Second).CheckSubscription(context.Background(), "hosp-42")
		require.NoError(t, err)
		assert.Equal(t, policy.StateRenewal, state)
	})

	t.Run("absent subscription means new", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		state, err := NewClient(srv.URL, time.Second).CheckSubscription(context.Background(), "hosp-42")
		require.NoError(t, err)
		assert.Equal(t, policy.StateNew, state)
	})

	t.Run("transport failure is unknown, not new", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections

		state, err := NewClient(srv.URL, time.Second).CheckSubscription(context.Background(), "hosp-42")
		require.Error(t, err)
		assert.Equal(t, policy.StateUnknown, state)

		var netErr *NetworkError
		assert.True(t, errors.As(err, &netErr))
	})

	t.Run("server failure is unknown", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		state, err := NewClient(srv.URL, time.Second).CheckSubscription(context.Background(), "hosp-42")
		require.Error(t, err)
		assert.Equal(t, policy.StateUnknown, state)

		var srvErr *ServerError
		require.True(t, errors.As(err, &srvErr))
		assert.Equal(t, http.StatusInternalServerError, srvErr.StatusCode)
	})
}

func TestCreateIntentPrepaid(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"orderId": "order_abc",
			"amount": 589882,
			"currency": "INR",
			"gatewayKey": "rzp_test_key",
			"subscriptionId": "sub_123"
		}`))
	}))
	defer srv.Close()

	receipt, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), testIntent(policy.MethodGatewayPrepaid))
	require.NoError(t, err)

	assert.Equal(t, "sub_123", receipt.SubscriptionID)
	require.NotNil(t, receipt.Handoff)
	assert.Equal(t, "order_abc", receipt.Handoff.OrderID)
	assert.Equal(t, pricing.Paise(589882), receipt.Handoff.Amount)
	assert.Equal(t, "INR", receipt.Handoff.Currency)
	assert.Equal(t, "rzp_test_key", receipt.Handoff.GatewayKey)

	assert.Equal(t, "hosp-42", got["tenantId"])
	assert.Equal(t, "basic", got["plan"])
	assert.Equal(t, "prepaid", got["method"])
	assert.Equal(t, "monthly", got["billingCycle"])
	assert.Equal(t, 4999.00, got["baseAmount"])
	assert.Equal(t, 5898.82, got["totalAmount"])
}

func TestCreateIntentTaxIDSerialization(t *testing.T) {
	t.Run("absent GSTIN goes out as N/A", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"subscriptionId":"sub_1","totalAmount":5898.82}`))
		}))
		defer srv.Close()

		in := testIntent(policy.MethodCashOnDelivery)
		in.TaxRegistrationID = ""
		_, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "N/A", got["taxRegistrationId"])
	})

	t.Run("present GSTIN passes through", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"subscriptionId":"sub_1","totalAmount":5898.82}`))
		}))
		defer srv.Close()

		in := testIntent(policy.MethodCashOnDelivery)
		in.TaxRegistrationID = "29ABCDE1234F1Z5"
		_, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "29ABCDE1234F1Z5", got["taxRegistrationId"])
	})
}

func TestCreateIntentNonPrepaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subscriptionId":"sub_9","totalAmount":5898.82}`))
	}))
	defer srv.Close()

	receipt, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), testIntent(policy.MethodDirectTransfer))
	require.NoError(t, err)
	assert.Equal(t, "sub_9", receipt.SubscriptionID)
	assert.Equal(t, pricing.Paise(589882), receipt.TotalAmount)
	assert.Nil(t, receipt.Handoff)
}

func TestCreateIntentMissingHandoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subscriptionId":"sub_9","totalAmount":5898.82}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), testIntent(policy.MethodGatewayPrepaid))
	require.Error(t, err)

	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Contains(t, srvErr.Message, "missing gateway handoff")
}

func TestCreateIntentServerErrorMessage(t *testing.T) {
	t.Run("server message extracted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"duplicate intent"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), testIntent(policy.MethodCashOnDelivery))
		var srvErr *ServerError
		require.True(t, errors.As(err, &srvErr))
		assert.Equal(t, "duplicate intent", srvErr.Message)
	})

	t.Run("generic fallback", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).CreateIntent(context.Background(), testIntent(policy.MethodCashOnDelivery))
		var srvErr *ServerError
		require.True(t, errors.As(err, &srvErr))
		assert.Equal(t, "something went wrong", srvErr.Message)
	})
}

func TestSubmitVerification(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify-payment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).SubmitVerification(context.Background(), "sub_123", StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, "sub_123", got["subscriptionId"])
	assert.Equal(t, "paid", got["paymentStatus"])
}

func TestSubmitVerificationNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := NewClient(srv.URL, time.Second).SubmitVerification(context.Background(), "sub_123", StatusPending)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}
