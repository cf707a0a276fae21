package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadenzario/internal/cache"
	"scadenzario/internal/log"
	"scadenzario/internal/records/memory"
	"scadenzario/internal/services"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("series-%d", s.n)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	store := memory.New(memory.DefaultCategories(), memory.DefaultPaymentMethods())
	series := services.NewSeriesService(store, store, nil, &seqIDs{})
	refs := services.NewReferenceService(store, cache.NewManager())
	if opts.Logger == nil {
		cfg := log.DefaultConfig()
		cfg.Output = io.Discard
		opts.Logger = log.New(cfg)
	}
	s := NewServer(":0", series, refs, nil, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func postJSON(t *testing.T, s *Server, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return do(t, s, http.MethodPost, target, "application/json", string(body))
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createRent(t *testing.T, s *Server, repeat int) *httptest.ResponseRecorder {
	t.Helper()
	return postJSON(t, s, "/transactions", map[string]any{
		"description":     "Rent",
		"type":            "EXPENSE",
		"amount":          1200,
		"date":            "2024-01-31",
		"categoryId":      1,
		"paymentMethodId": 1,
		"repeatCount":     repeat,
	})
}

func TestCreateSingleTransaction(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := createRent(t, s, 1)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "/transactions/1", rr.Header().Get("Location"))

	tx := decode[map[string]any](t, rr)
	assert.Equal(t, "Rent", tx["description"])
	assert.Equal(t, "PENDING", tx["status"])
	assert.Equal(t, "2024-01-31", tx["date"])
	assert.Equal(t, 1200.0, tx["amount"])
	assert.Equal(t, "series-1", tx["seriesId"])
	assert.Equal(t, 1.0, tx["installmentTotal"])
}

func TestCreateSeriesReturnsSummary(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := createRent(t, s, 3)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/series/series-1", rr.Header().Get("Location"))

	sum := decode[map[string]any](t, rr)
	assert.Equal(t, "series-1", sum["seriesId"])
	assert.Equal(t, 3.0, sum["count"])
	assert.Equal(t, 3600.0, sum["total"])

	rr = do(t, s, http.MethodGet, "/series/series-1", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[[]transactionView](t, rr)
	require.Len(t, items, 3)
	assert.Equal(t, "2024-01-31", items[0].Date)
	assert.Equal(t, "2024-02-29", items[1].Date)
	assert.Equal(t, "2024-03-31", items[2].Date)
	assert.Equal(t, 3, items[2].InstallmentNumber)
}

func TestCreateDistributedTotalFromForm(t *testing.T) {
	s := newTestServer(t, Options{})

	form := url.Values{
		"description":     {"Insurance"},
		"type":            {"EXPENSE"},
		"amount":          {"100"},
		"date":            {"2024-05-10"},
		"categoryId":      {"2"},
		"paymentMethodId": {"3"},
		"repeatCount":     {"3"},
		"distributeTotal": {"on"},
	}
	rr := do(t, s, http.MethodPost, "/transactions", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/series/series-1", "", "")
	items := decode[[]transactionView](t, rr)
	require.Len(t, items, 3)
	assert.Equal(t, "33.34", items[0].Amount.String())
	assert.Equal(t, "33.33", items[1].Amount.String())
	assert.Equal(t, "33.33", items[2].Amount.String())
}

func TestCreateValidationErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing description", map[string]any{"type": "EXPENSE", "amount": 1, "date": "2024-01-01", "categoryId": 1, "paymentMethodId": 1}},
		{"bad amount", map[string]any{"description": "x", "type": "EXPENSE", "amount": "abc", "date": "2024-01-01", "categoryId": 1, "paymentMethodId": 1}},
		{"bad date", map[string]any{"description": "x", "type": "EXPENSE", "amount": 1, "date": "2024-13-01", "categoryId": 1, "paymentMethodId": 1}},
		{"unknown category", map[string]any{"description": "x", "type": "EXPENSE", "amount": 1, "date": "2024-01-01", "categoryId": 99, "paymentMethodId": 1}},
		{"category type mismatch", map[string]any{"description": "x", "type": "EXPENSE", "amount": 1, "date": "2024-01-01", "categoryId": 4, "paymentMethodId": 1}},
		{"too many repeats", map[string]any{"description": "x", "type": "EXPENSE", "amount": 1, "date": "2024-01-01", "categoryId": 1, "paymentMethodId": 1, "repeatCount": 361}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, s, "/transactions", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, rr).Error)
		})
	}

	rr := do(t, s, http.MethodGet, "/transactions", "", "")
	assert.Equal(t, 0.0, decode[map[string]any](t, rr)["total"])
}

func TestCreateMalformedJSON(t *testing.T) {
	s := newTestServer(t, Options{})
	rr := do(t, s, http.MethodPost, "/transactions", "application/json", `{"description":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSettleLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 1).Code)

	rr := do(t, s, http.MethodPost, "/transactions/1/settle", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[transitionView](t, rr)
	assert.True(t, first.Found)
	assert.True(t, first.Changed)
	assert.Equal(t, "PAID", first.Status)
	require.NotNil(t, first.Transaction)
	assert.Equal(t, "PAID", first.Transaction.Status)

	rr = do(t, s, http.MethodPost, "/transactions/1/settle", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[transitionView](t, rr)
	assert.True(t, second.Found)
	assert.False(t, second.Changed)
	assert.Equal(t, "PAID", second.Status)

	rr = do(t, s, http.MethodPost, "/transactions/1/cancel", "", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSettleAndCancelUnknownID(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, action := range []string{"settle", "cancel"} {
		rr := do(t, s, http.MethodPost, "/transactions/42/"+action, "", "")
		assert.Equal(t, http.StatusNotFound, rr.Code, action)
		assert.False(t, decode[transitionView](t, rr).Found)
	}

	rr := do(t, s, http.MethodPost, "/transactions/abc/settle", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCancelPendingInstallment(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 2).Code)

	rr := do(t, s, http.MethodPost, "/transactions/2/cancel", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[transitionView](t, rr)
	assert.True(t, res.Changed)
	assert.Equal(t, "CANCELED", res.Status)

	rr = do(t, s, http.MethodPost, "/transactions/2/settle", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	res = decode[transitionView](t, rr)
	assert.False(t, res.Changed)
	assert.Equal(t, "CANCELED", res.Status)
}

func TestListFilters(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 3).Code)
	require.Equal(t, http.StatusCreated, postJSON(t, s, "/transactions", map[string]any{
		"description":     "Salary",
		"type":            "INCOME",
		"amount":          "2500.00",
		"date":            "2024-02-27",
		"categoryId":      4,
		"paymentMethodId": 1,
	}).Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/transactions/1/settle", "", "").Code)

	tests := []struct {
		query string
		total float64
	}{
		{"", 4},
		{"?type=INCOME", 1},
		{"?status=PENDING", 3},
		{"?status=PAID", 1},
		{"?seriesId=series-1", 3},
		{"?description=rent", 3},
		{"?from=2024-02-01&to=2024-02-29", 2},
		{"?limit=2&page=2", 4},
		{"?page=abc", 4},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/transactions"+tt.query, "", "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, tt.total, decode[map[string]any](t, rr)["total"])
		})
	}

	rr := do(t, s, http.MethodGet, "/transactions?limit=2&page=2", "", "")
	page := decode[pageView](t, rr)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.TotalPages)

	rr = do(t, s, http.MethodGet, "/transactions?status=LATE", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestGetUpdateDeleteTransaction(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 2).Code)

	rr := do(t, s, http.MethodGet, "/transactions/2", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[transactionView](t, rr).InstallmentNumber)

	body := `{"description":"Rent (new flat)","type":"EXPENSE","status":"PENDING","amount":"1300.50","date":"2024-03-01","categoryId":1,"paymentMethodId":2}`
	rr = do(t, s, http.MethodPut, "/transactions/2", "application/json", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[transactionView](t, rr)
	assert.Equal(t, "Rent (new flat)", updated.Description)
	assert.Equal(t, "1300.50", updated.Amount.String())
	assert.Equal(t, "series-1", updated.SeriesID)
	assert.Equal(t, 2, updated.InstallmentTotal)

	rr = do(t, s, http.MethodPut, "/transactions/99", "application/json", body)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodDelete, "/transactions/2", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/transactions/2", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodGet, "/series/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateStatusRules(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 1).Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/transactions/1/settle", "", "").Code)

	body := `{"description":"Rent","type":"EXPENSE","amount":"1200","date":"2024-01-31","categoryId":1,"paymentMethodId":1}`
	rr := do(t, s, http.MethodPut, "/transactions/1", "application/json", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "PAID", decode[transactionView](t, rr).Status)

	body = `{"description":"Rent","type":"EXPENSE","status":"RECEIVED","amount":"1200","date":"2024-01-31","categoryId":1,"paymentMethodId":1}`
	rr = do(t, s, http.MethodPut, "/transactions/1", "application/json", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, s, http.MethodGet, "/transactions/1", "", "")
	assert.Equal(t, "PAID", decode[transactionView](t, rr).Status)
}

func TestCreateRejectsOutOfRangeAmount(t *testing.T) {
	s := newTestServer(t, Options{})
	rr := postJSON(t, s, "/transactions", map[string]any{
		"description":     "Overflow",
		"type":            "EXPENSE",
		"amount":          "92233720368547758.08",
		"date":            "2024-01-31",
		"categoryId":      1,
		"paymentMethodId": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/transactions", "", "")
	assert.Equal(t, 0.0, decode[map[string]any](t, rr)["total"])
}

func TestReferenceEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := do(t, s, http.MethodGet, "/categories?type=INCOME", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cats := decode[[]categoryView](t, rr)
	require.Len(t, cats, 1)
	assert.Equal(t, "Stipendio", cats[0].Name)

	rr = postJSON(t, s, "/categories", map[string]any{"name": "Bonus", "type": "INCOME"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/categories?type=INCOME", "", "")
	assert.Len(t, decode[[]categoryView](t, rr), 2)

	rr = postJSON(t, s, "/categories", map[string]any{"name": "Bonus", "type": "INCOME"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, s, http.MethodGet, "/categories?type=GIFT", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, s, http.MethodGet, "/payment-methods", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]paymentMethodView](t, rr), 3)

	rr = do(t, s, http.MethodPost, "/payment-methods", "application/x-www-form-urlencoded", "name=PayPal")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "PayPal", decode[paymentMethodView](t, rr).Name)
}

func TestUpdateReferenceEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, createRent(t, s, 1).Code)

	rr := do(t, s, http.MethodPut, "/categories/2", "application/json", `{"name":"Spesa","type":"EXPENSE"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Spesa", decode[categoryView](t, rr).Name)

	rr = do(t, s, http.MethodPut, "/categories/2", "application/json", `{"name":"Casa","type":"EXPENSE"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, s, http.MethodPut, "/categories/1", "application/json", `{"name":"Casa","type":"INCOME"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, s, http.MethodPut, "/categories/99", "application/json", `{"name":"Altro","type":"EXPENSE"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodPut, "/categories/abc", "application/json", `{"name":"Altro","type":"EXPENSE"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, s, http.MethodPut, "/payment-methods/1", "application/x-www-form-urlencoded", "name=SEPA")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "SEPA", decode[paymentMethodView](t, rr).Name)

	rr = do(t, s, http.MethodPut, "/payment-methods/1", "application/json", `{"name":"Carta"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, s, http.MethodPut, "/payment-methods/42", "application/json", `{"name":"Nuovo"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := do(t, s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = do(t, s, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rr)["status"])

	s.pinger = failingPinger{}
	rr = do(t, s, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", decode[map[string]any](t, rr)["status"])
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	s := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr := do(t, s, http.MethodPost, "/transactions/42/settle", "", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	}
	rr := do(t, s, http.MethodPost, "/transactions/42/settle", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		rr = do(t, s, http.MethodGet, "/transactions", "", "")
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	s := newTestServer(t, Options{})
	big := `{"description":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(big))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
