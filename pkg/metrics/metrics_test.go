package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(RecordsCommitted.WithLabelValues("metrics-test"))
	RecordsCommitted.WithLabelValues("metrics-test").Add(250)
	assert.Equal(t, before+250, testutil.ToFloat64(RecordsCommitted.WithLabelValues("metrics-test")))

	ActiveJobs.Inc()
	ActiveJobs.Dec()
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveJobs))
}

func TestMetricNames(t *testing.T) {
	assert.Equal(t, 1, testutil.CollectAndCount(ActiveJobs, "custsync_active_jobs"))

	PagesFetched.WithLabelValues("metrics-test").Inc()
	assert.GreaterOrEqual(t, testutil.CollectAndCount(PagesFetched, "custsync_pages_fetched_total"), 1)
}
