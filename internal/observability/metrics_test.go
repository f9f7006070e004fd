package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	m := NewMetricsForTesting()
	m.ObserveStage("index", 20*time.Millisecond)
	m.ObserveStage("index", 30*time.Millisecond)
	m.ObserveStage("clip", time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.StageDuration))
}

func TestObserveSnowArea(t *testing.T) {
	m := NewMetricsForTesting()
	m.ObserveSnowArea(0.36)

	assert.Equal(t, 1, testutil.CollectAndCount(m.SnowArea))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.RequestsConsumed))
	require.NoError(t, reg.Register(m.StageDuration))

	m.RequestsConsumed.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsConsumed))
}
