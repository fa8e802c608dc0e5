package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("gw", reg)

	m.ReadingSubmitted()
	m.ReadingSubmitted()
	m.ReadingDropped()
	m.EnsureReadyFailed("token invalid")
	m.Anchored("ok")
	m.Anchored("ok")
	m.Anchored("rejected")
	m.VerificationFailed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.readingsSubmitted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.readingsDropped))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ensureReadyFailures.WithLabelValues("token invalid")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.anchors.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.anchors.WithLabelValues("rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.verificationFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["gw_readings_submitted_total"])
	require.True(t, names["gw_anchors_total"])
}

func TestInitLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("gw", reg)
	m.InitLabels([]string{"token invalid", "store failure"}, []string{"success"})

	count, err := testutil.GatherAndCount(reg, "gw_ensure_ready_failures_total", "gw_anchors_total")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 0.0, testutil.ToFloat64(m.anchors.WithLabelValues("success")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ReadingSubmitted()
		m.ReadingDropped()
		m.EnsureReadyFailed("x")
		m.Anchored("ok")
		m.VerificationFailed()
		m.InitLabels([]string{"x"}, nil)
	})
}

func TestNewServer(t *testing.T) {
	s, err := New("gw", "127.0.0.1:0")
	require.NoError(t, err)
	require.NotNil(t, s.Metrics)

	s.Metrics.ReadingSubmitted()
	families, err := s.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
