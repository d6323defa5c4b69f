package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := New()

	c.IncSuccess()
	c.IncSuccess()
	c.IncFailed()
	c.AddSkipped(3)
	c.AddFiltered(4)
	c.IncRetry("transient")
	c.ObserveProgress("documents", 10)
	c.ObserveProgress("documents", 5)
	c.ObserveFiles(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.itemsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.itemsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.itemsTotal.WithLabelValues("filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retriesTotal.WithLabelValues("transient")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.progressTotal.WithLabelValues("documents")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.filesTotal))
}

func TestCollectorInflight(t *testing.T) {
	c := New()
	c.IncInflight()
	c.IncInflight()
	c.DecInflight()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inflightWorkers))

	c.ObserveDuration(150 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollectorsAreIndependent(t *testing.T) {
	// private registries: building twice must not panic on duplicate registration
	a, b := New(), New()
	a.IncSuccess()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.itemsTotal.WithLabelValues("success")))
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObserveFiles(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "shardwork_files_total 1"), body)
}
