package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func writeData(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
}

// dropConnection закрывает соединение без ответа.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if assert.NoError(t, err) {
		_ = conn.Close()
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		WithRetryDelay(time.Millisecond),
	}
	c, err := New(srv.URL, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAbsoluteURL(t *testing.T) {
	_, err := New("localhost:8080/api")
	require.Error(t, err)

	_, err = New("http://backend.local/api/")
	require.NoError(t, err)
}

func TestProduct_DecodesEnvelopeAndForwardsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p-1", r.URL.Path)
		assert.Equal(t, "s-1", r.URL.Query().Get("storeId"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeData(t, w, http.StatusOK, map[string]any{
			"id": "p-1", "storeId": "s-1", "name": "Apples", "price": 12000, "stock": 7, "weightGrams": 1000,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	offer, err := c.Product(WithAccessToken(context.Background(), "tok-123"), "p-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductOffer{
		ProductID: "p-1", StoreID: "s-1", Name: "Apples", Price: 12000, Stock: 7, WeightGrams: 1000,
	}, offer)
}

func TestCall_RetriesOnceOnNetworkError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			dropConnection(t, w)
			return
		}
		writeData(t, w, http.StatusOK, []map[string]any{{"serviceCode": "REG", "name": "Regular", "baseCost": 1000, "etd": "1-2"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	options, err := c.ShippingOptions(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "REG", options[0].ServiceCode)
	assert.Nil(t, options[0].MaxDistanceKm)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_RetriesOnceOnTimeoutThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithTimeout(30*time.Millisecond))
	_, err := c.GetOrder(context.Background(), "o-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_DoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadGateway, "", "upstream down")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetOrder(context.Background(), "o-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   *domain.Error
	}{
		{"unauthorized", http.StatusUnauthorized, "", domain.ErrSessionExpired},
		{"bad request generic", http.StatusBadRequest, "SOMETHING", domain.ErrBadRequest},
		{"unprocessable known", http.StatusUnprocessableEntity, "CANCEL_REASON_REQUIRED", domain.ErrCancelReasonRequired},
		{"conflict known", http.StatusConflict, "VOUCHER_ALREADY_USED", domain.ErrVoucherAlreadyUsed},
		{"conflict illegal transition", http.StatusConflict, "ILLEGAL_TRANSITION", domain.ErrIllegalTransition},
		{"forbidden generic", http.StatusForbidden, "", domain.ErrRejected},
		{"not found", http.StatusNotFound, "", domain.ErrNotFound},
		{"internal", http.StatusInternalServerError, "", domain.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeError(w, tt.status, tt.code, "backend says no")
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			_, err := c.CancelOrder(context.Background(), "o-1", "changed my mind")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.want.Kind, domain.KindOf(err))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestCreateOrder_SendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body placeOrderDTO
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s-1", body.StoreID)
		if assert.Len(t, body.Items, 1) {
			assert.Equal(t, int32(2), body.Items[0].Quantity)
		}

		writeData(t, w, http.StatusCreated, map[string]any{
			"id": "o-1", "userId": "u-1", "storeId": "s-1", "status": "PENDING_PAYMENT",
			"items":    []map[string]any{{"id": "i-1", "productId": "p-1", "productNameSnapshot": "Apples", "priceAtPurchase": 10000, "quantity": 2}},
			"subtotal": 20000, "shippingCost": 1500, "discountAmount": 2000, "totalAmount": 19500,
			"paymentDeadline": "2026-01-02T10:00:00Z", "createdAt": "2026-01-01T10:00:00Z",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	order, err := c.CreateOrder(context.Background(), domain.PlaceOrderRequest{
		IdempotencyKey: "key-1",
		UserID:         "u-1",
		StoreID:        "s-1",
		Items:          []domain.PlaceOrderItem{{ProductID: "p-1", Qty: 2}},
		ExpectedTotal:  19500,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, domain.Money(19500), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Apples", order.Items[0].ProductName)
	require.NotNil(t, order.PaymentDeadline)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), order.PaymentDeadline.UTC())
}

func TestUploadPaymentProof_SendsMultipartFile(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\nrest-of-image")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/o-1/payment-proof", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		got, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, "proof.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		writeData(t, w, http.StatusOK, map[string]any{
			"id": "o-1", "status": "PENDING_CONFIRMATION", "paymentProofUrl": "https://cdn.local/proof.png",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	order, err := c.UploadPaymentProof(context.Background(), "o-1", domain.PaymentProof{
		Filename: "proof.png", ContentType: "image/png", Data: data,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPendingConfirmation, order.Status)
	assert.Equal(t, "https://cdn.local/proof.png", order.PaymentProofURL)
}

func TestUploadPaymentProof_NetworkErrorIsUploadFailedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.UploadPaymentProof(context.Background(), "o-1", domain.PaymentProof{
		Filename: "proof.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUploadFailed))
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestApplicableRulesAndVouchers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/discounts/applicable":
			assert.Equal(t, "p-1,p-2", r.URL.Query().Get("productIds"))
			writeData(t, w, http.StatusOK, []map[string]any{
				{"id": 3, "scope": "CART", "kind": "PERCENTAGE", "value": "10", "minPurchase": 0, "maxDiscount": 0},
			})
		case "/vouchers/me":
			writeData(t, w, http.StatusOK, []map[string]any{
				{"code": "FREESHIP", "kind": "NOMINAL", "value": 1500, "target": "SHIPPING", "expiresAt": "2027-01-01T00:00:00Z"},
			})
		case "/vouchers/apply":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "FREESHIP", body["code"])
			assert.Equal(t, "o-1", body["orderId"])
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	rules, err := c.ApplicableRules(ctx, "s-1", []string{"p-1", "p-2"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(3), rules[0].ID)
	assert.Equal(t, "10", rules[0].Value.String())

	vouchers, err := c.MyVouchers(ctx)
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
	assert.Equal(t, "1500", vouchers[0].Value.String())
	assert.False(t, vouchers[0].IsUsed())

	require.NoError(t, c.ApplyVoucher(ctx, "FREESHIP", "o-1"))
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithBreakerSettings(gobreaker.Settings{
		Name:        "test",
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 2 },
	}))
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	for range 2 {
		_, err := c.GetOrder(ctx, "o-1")
		require.Error(t, err)
	}
	assert.Equal(t, domain.KindTransport, domain.KindOf(c.Ping(ctx)))
	_, err := c.GetOrder(ctx, "o-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "", "no such order")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithBreakerSettings(gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
	}))
	for range 3 {
		_, err := c.GetOrder(context.Background(), "missing")
		require.True(t, errors.Is(err, domain.ErrNotFound))
	}
}

func TestAccessToken(t *testing.T) {
	_, ok := AccessToken(context.Background())
	assert.False(t, ok)

	_, ok = AccessToken(WithAccessToken(context.Background(), ""))
	assert.False(t, ok)

	token, ok := AccessToken(WithAccessToken(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}
