package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReferenceLoad("clinics", nil)
	m.ReferenceLoad("items", errors.New("down"))
	m.Submission("ok")
	m.Submission("ok")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.referenceLoads.WithLabelValues("clinics", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.referenceLoads.WithLabelValues("items", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReferenceLoad("clinics", nil)
		m.Submission("backend")
		m.ObserveSubmit(0.1)
		m.SessionOpened()
		m.SessionClosed()
	})
}
