package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTx(t *testing.T) {
	m := New()
	m.ObserveTx("submit_order", true)
	m.ObserveTx("submit_order", false)
	m.ObserveTx("swap", true)
	m.ObserveTx("convert_reverse", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.txs.WithLabelValues("submit_order", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txs.WithLabelValues("submit_order", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversions))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ordersCancelled))
}

func TestObserveMatchAndBlock(t *testing.T) {
	m := New()
	m.ObserveMatch(3, 4)
	m.ObserveMatch(1, 0)
	m.ObserveBlock(42, 5*time.Millisecond)
	m.SetMempoolSize(7)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.fills))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.matchedOrders))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.blockHeight))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.mempoolSize))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBlock(9, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hyperswap_block_height 9"))
}
