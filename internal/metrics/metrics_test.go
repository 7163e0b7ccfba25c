package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveSync(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSync(SyncComplete, 250, time.Second)
	m.ObserveSync(SyncFetchFailed, 0, time.Second)
	m.ObserveSync(SyncComplete, 10, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SyncRuns.WithLabelValues(SyncComplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRuns.WithLabelValues(SyncFetchFailed)))
	assert.Equal(t, 260.0, testutil.ToFloat64(m.SyncRecords))
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncManualAdd()
	m.IncPublished(true)
	m.IncPublished(false)
	m.IncNotification("sent")
	m.SetNotifierCircuit(1)
	m.ObserveHTTP("/countries/{code}", "404", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ManualAdds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifierCircuit))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/countries/{code}", "404")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSync(SyncFailed, 1, time.Second)
		m.IncManualAdd()
		m.IncPublished(true)
		m.IncNotification("failed")
		m.SetNotifierCircuit(0)
		m.ObserveHTTP("/health", "200", time.Millisecond)
	})
}
