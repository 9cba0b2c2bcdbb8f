package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCheckout("ok")
		m.ObserveFulfillment("fulfilled")
		m.ObservePurchase("created")
		m.ObserveHTTP("/x", http.MethodGet, 200, time.Millisecond)
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObservePurchase("created")
	m.ObservePurchase("created")
	m.ObservePurchase("duplicate")
	m.ObserveHTTP("/v1/books", http.MethodGet, 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `storefront_purchase_writes_total{result="created"} 2`)
	assert.Contains(t, body, `storefront_purchase_writes_total{result="duplicate"} 1`)
	assert.Contains(t, body, `storefront_http_requests_total{method="GET",route="/v1/books",status="200"} 1`)

	// A second instance registers cleanly alongside the first.
	assert.NotPanics(t, func() { New() })
}
