package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(core.PaymentConfig{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: 5 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_CreateCheckout(t *testing.T) {
	var got checkoutRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "Hosted Link",
			"data":    map[string]string{"link": "https://checkout.test/pay/abc"},
		})
	})

	checkout, err := client.CreateCheckout(context.Background(), enrollment.Intent{
		Reference: "course-c1-u1-1700000000000",
		Amount:    80,
		Currency:  "NGN",
		Title:     "Go in Production",
		ReturnURL: "http://app.test/courses/c1/enroll?payment=success",
		CancelURL: "http://app.test/courses/c1/enroll?payment=cancelled",
		Customer:  enrollment.Customer{Email: "amara@example.com", Name: "Amara Okafor"},
		Meta:      map[string]string{"course_id": "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/pay/abc", checkout.Link)

	assert.Equal(t, "course-c1-u1-1700000000000", got.TxRef)
	assert.Equal(t, "80.00", got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "http://app.test/courses/c1/enroll?payment=success", got.RedirectURL)
	assert.Equal(t, "amara@example.com", got.Customer.Email)
	assert.Equal(t, "Go in Production", got.Customizations["title"])
	assert.Equal(t, map[string]string{"course_id": "c1", "cancel_url": "http://app.test/courses/c1/enroll?payment=cancelled"}, got.Meta)
}

func TestClient_CreateCheckout_errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]interface{}
		wantStatus int
	}{
		{"provider error", http.StatusBadRequest, map[string]interface{}{"status": "error", "message": "Invalid currency"}, http.StatusBadRequest},
		{"unsuccessful envelope", http.StatusOK, map[string]interface{}{"status": "error", "message": "nope"}, http.StatusOK},
		{"no link", http.StatusOK, map[string]interface{}{"status": "success", "data": map[string]string{}}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := client.CreateCheckout(context.Background(), enrollment.Intent{Reference: "r", Amount: 1, Currency: "NGN"})
			require.Error(t, err)
			if tc.wantStatus == 0 {
				return
			}
			pErr, ok := err.(*ProviderError)
			require.True(t, ok, "want *ProviderError, got %T", err)
			assert.Equal(t, tc.wantStatus, pErr.StatusCode)
			assert.Equal(t, tc.body["message"], pErr.Message)
		})
	}
}

func TestClient_VerifyTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/transactions/4242/verify" {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "No transaction was found for this id"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"id":           4242,
				"tx_ref":       "course-c1-u1-1700000000000",
				"status":       "successful",
				"amount":       80,
				"currency":     "NGN",
				"payment_type": "card",
			},
		})
	})

	ver, err := client.VerifyTransaction(context.Background(), "4242")
	require.NoError(t, err)
	assert.Equal(t, "4242", ver.TransactionID)
	assert.Equal(t, "course-c1-u1-1700000000000", ver.Reference)
	assert.Equal(t, enrollment.StatusSuccessful, ver.Status)
	assert.Equal(t, 80.0, ver.Amount)
	assert.Equal(t, "NGN", ver.Currency)
	assert.Equal(t, "card", ver.PaymentMethod)
	assert.Equal(t, "card", ver.Raw["payment_type"])

	_, err = client.VerifyTransaction(context.Background(), "1")
	pErr, ok := err.(*ProviderError)
	require.True(t, ok, "want *ProviderError, got %T", err)
	assert.Equal(t, http.StatusNotFound, pErr.StatusCode)
	assert.Equal(t, "No transaction was found for this id", pErr.Message)
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(core.PaymentConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, err := client.VerifyTransaction(context.Background(), "1")
	require.Error(t, err)
	_, ok := err.(*ProviderError)
	assert.False(t, ok)
}
