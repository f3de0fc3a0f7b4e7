package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreOperation(t *testing.T) {
	r := NewRegistry()

	r.RecordStoreOperation("save", nil, 10*time.Millisecond)
	r.RecordStoreOperation("save", errors.New("disk full"), time.Millisecond)
	r.RecordStoreOperation("load", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOperationsTotal.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOperationsTotal.WithLabelValues("save", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOperationsTotal.WithLabelValues("load", "ok")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	r := NewRegistry()
	r.GraphsActive.Set(3)
	r.RecordHTTPRequest("GET", "/api/v1/routes", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "trailgraph_graphs_active 3"))
	assert.True(t, strings.Contains(body, `trailgraph_http_requests_total{method="GET",route="/api/v1/routes",status="200"} 1`))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.WaypointsTotal.WithLabelValues("split").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.WaypointsTotal.WithLabelValues("split")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.WaypointsTotal.WithLabelValues("split")))
}
