package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/observability"
	"github.com/couchcryptid/snowsense/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	errs    []error
	calls   atomic.Int32
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.calls.Add(1)
	m.mu.Lock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	fail map[string]bool
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if m.fail[string(raw.Key)] {
		return domain.OutputEvent{}, errors.New("analysis failed")
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.OutputEvent
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type commitLog struct {
	mu      sync.Mutex
	offsets []int64
}

func (c *commitLog) event(key string, offset int64) domain.RawEvent {
	return domain.RawEvent{
		Key:    []byte(key),
		Value:  []byte(`{"region":"Siachen"}`),
		Topic:  "snow-analysis-requests",
		Offset: offset,
		Commit: func(context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.offsets = append(c.offsets, offset)
			return nil
		},
	}
}

func (c *commitLog) committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

func runUntil(t *testing.T, p *pipeline.Pipeline, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, done, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{commits.event("a", 1), commits.event("b", 2)}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 10)
	require.Error(t, p.CheckReadiness(context.Background()))

	runUntil(t, p, func() bool { return ldr.count() == 2 && len(commits.committed()) == 2 })

	assert.Equal(t, []int64{1, 2}, commits.committed())
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RequestsConsumed))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReportsProduced))
	assert.Zero(t, testutil.ToFloat64(metrics.PipelineRunning), "gauge resets on shutdown")
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
}

func TestPipeline_Run_SkipsFailedAnalysis(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{commits.event("bad", 7), commits.event("good", 8)}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{fail: map[string]bool{"bad": true}}, ldr, discardLogger(), metrics, 10)
	runUntil(t, p, func() bool { return ldr.count() == 1 && len(commits.committed()) == 2 })

	assert.Equal(t, []int64{7, 8}, commits.committed(), "failed requests are committed so they are not redelivered")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysisErrors))
}

func TestPipeline_Run_AllFailedNotReady(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{commits.event("bad", 1)}}}

	p := pipeline.New(ext, &mockTransformer{fail: map[string]bool{"bad": true}}, &mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 10)
	runUntil(t, p, func() bool { return len(commits.committed()) == 1 })

	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_LoadFailureLeavesOffsetsUncommitted(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{batches: [][]domain.RawEvent{
		{commits.event("a", 1)},
		{commits.event("b", 2)},
	}}
	ldr := &mockLoader{failures: 1}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	runUntil(t, p, func() bool { return ldr.count() == 1 })

	assert.Equal(t, []int64{2}, commits.committed())
}

func TestPipeline_Run_RetriesExtractErrors(t *testing.T) {
	commits := &commitLog{}
	ext := &mockExtractor{
		errs:    []error{errors.New("fetch failed")},
		batches: [][]domain.RawEvent{{commits.event("a", 1)}},
	}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)
	runUntil(t, p, func() bool { return ldr.count() == 1 })

	assert.GreaterOrEqual(t, ext.calls.Load(), int32(2))
}
