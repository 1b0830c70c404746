package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveSend("telegram", true, 120*time.Millisecond)
	m.ObserveSend("telegram", false, time.Second)
	m.ObserveSend("discord", false, time.Second)
	m.ObservePass("ok", 3, 10*time.Second)
	m.ObservePass("skipped", 0, 0)
	m.ObserveFragment("amazon-us", "stored")
	m.ObserveFragment("amazon-us", "skipped")
	m.ObserveStored(true)
	m.ObserveStored(false)
	m.ObserveStored(false)
	m.ObserveIngest("amazon-us", 4*time.Second)
	m.SetPending(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("telegram", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("telegram", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("discord", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DealsDistributed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProductsStored.WithLabelValues("updated")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PendingProducts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PassDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePass("ok", 1, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ofertas_distribution_passes_total{result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
