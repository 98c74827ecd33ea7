package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewEngineMetricsReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewEngineMetrics(reg)
	require.NotPanics(t, func() {
		second := NewEngineMetrics(reg)
		second.SegmentRotations.Inc()
	})
	first.SegmentRotations.Inc()
}

func TestNewServerMetricsReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	NewServerMetrics(reg)
	require.NotPanics(t, func() {
		NewServerMetrics(reg)
	})
}
