package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var start = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func testEntry(t *testing.T) Entry {
	t.Helper()
	green := mat.NewDense(2, 3, []float64{0.8, 0.7, 0.1, 0.9, 0.2, 0.6})
	swir := mat.NewDense(2, 3, []float64{0.1, 0.1, 0.5, 0.2, 0.4, 0.1})
	stack, err := raster.NewStack([]raster.BandRole{raster.Green, raster.SWIR1}, []*mat.Dense{green, swir})
	require.NoError(t, err)

	snowMask := raster.NewMaskFunc(2, 3, func(i, j int) bool { return green.At(i, j) > swir.At(i, j) })
	dry := raster.NewMaskFunc(2, 3, func(i, j int) bool { return snowMask.At(i, j) && j == 0 })
	return Entry{
		ID:      NewID(),
		Profile: raster.GeoProfile{Transform: raster.NorthUp(500000, 4000000, 10), CRS: "EPSG:32645", Height: 2, Width: 3},
		Stack:   stack,
		Masks:   map[Stage]*raster.Mask{StageSnow: snowMask, StageDry: dry},
	}
}

type storeFactory func(t *testing.T, clock clockwork.Clock, maxEntries int, maxAge time.Duration, gauge prometheus.Gauge) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock clockwork.Clock, maxEntries int, maxAge time.Duration, gauge prometheus.Gauge) Store {
			return NewMemoryStore(maxEntries, maxAge, WithClock(clock), WithLiveGauge(gauge))
		},
		"disk": func(t *testing.T, clock clockwork.Clock, maxEntries int, maxAge time.Duration, gauge prometheus.Gauge) Store {
			s, err := NewDiskStore(t.TempDir(), maxEntries, maxAge, WithClock(clock), WithLiveGauge(gauge))
			require.NoError(t, err)
			return s
		},
	}
}

func newGauge() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: "sessions_live"})
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, clockwork.NewFakeClockAt(start), 10, time.Hour, newGauge())
			want := testEntry(t)
			require.NoError(t, store.Put(ctx, want))

			got, err := store.Get(ctx, want.ID)
			require.NoError(t, err)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Profile, got.Profile)
			assert.True(t, got.UpdatedAt.Equal(start))

			require.NotNil(t, got.Stack)
			assert.Equal(t, want.Stack.Roles(), got.Stack.Roles())
			for i := 0; i < want.Stack.Len(); i++ {
				assert.True(t, mat.Equal(want.Stack.At(i), got.Stack.At(i)), "band %d", i)
			}

			for _, stage := range []Stage{StageSnow, StageDry} {
				wantMask, _ := want.Mask(stage)
				gotMask, err := got.Mask(stage)
				require.NoError(t, err)
				if diff := cmp.Diff(wantMask.Cells(), gotMask.Cells()); diff != "" {
					t.Errorf("%s mask mismatch (-want +got):\n%s", stage, diff)
				}
			}

			_, err = got.Mask(StageWet)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(start)
			gauge := newGauge()
			store := factory(t, clock, 10, time.Hour, gauge)

			old := testEntry(t)
			require.NoError(t, store.Put(ctx, old))
			clock.Advance(45 * time.Minute)
			fresh := testEntry(t)
			require.NoError(t, store.Put(ctx, fresh))
			assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

			clock.Advance(30 * time.Minute)
			_, err := store.Get(ctx, old.ID)
			assert.ErrorIs(t, err, ErrNotFound, "expired entries are invisible before a sweep")

			removed, err := store.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)
			assert.Equal(t, 1.0, testutil.ToFloat64(gauge))

			_, err = store.Get(ctx, fresh.ID)
			require.NoError(t, err)
		})
	}
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(start)
			store := factory(t, clock, 2, time.Hour, newGauge())

			ids := make([]string, 3)
			for i := range ids {
				e := testEntry(t)
				ids[i] = e.ID
				require.NoError(t, store.Put(ctx, e))
				clock.Advance(time.Second)
			}

			_, err := store.Get(ctx, ids[0])
			assert.ErrorIs(t, err, ErrNotFound)
			for _, id := range ids[1:] {
				_, err := store.Get(ctx, id)
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_DeleteAndInvalidIDs(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, clockwork.NewFakeClockAt(start), 10, time.Hour, newGauge())

			e := testEntry(t)
			require.NoError(t, store.Put(ctx, e))
			require.NoError(t, store.Delete(ctx, e.ID))
			assert.ErrorIs(t, store.Delete(ctx, e.ID), ErrNotFound)

			bad := testEntry(t)
			bad.ID = "../../etc/passwd"
			assert.Error(t, store.Put(ctx, bad))
			_, err := store.Get(ctx, bad.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDiskStore_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(start)

	writer, err := NewDiskStore(dir, 10, time.Hour, WithClock(clock))
	require.NoError(t, err)
	e := testEntry(t)
	require.NoError(t, writer.Put(ctx, e))

	gauge := newGauge()
	reader, err := NewDiskStore(dir, 10, time.Hour, WithClock(clock), WithLiveGauge(gauge))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))

	got, err := reader.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Profile, got.Profile)
}

func TestDiskStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 10, 0)
	require.NoError(t, err)

	id := NewID()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+diskExt), []byte("not msgpack"), 0o600))

	_, err = store.Get(ctx, id)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "decode session")
}

func TestParseStage(t *testing.T) {
	for _, s := range []string{"stack", "snow", "dry", "wet"} {
		st, err := ParseStage(s)
		require.NoError(t, err)
		assert.Equal(t, Stage(s), st)
	}
	_, err := ParseStage("ndsi")
	assert.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("urn:uuid:"+NewID()))
	assert.False(t, ValidID("not-a-uuid"))
}

// --- sweeper ---

type countingStore struct {
	Store
	sweeps atomic.Int32
}

func (c *countingStore) Sweep(context.Context) (int, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	store := &countingStore{}
	s := NewSweeper(store, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return store.sweeps.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_RejectsBadInterval(t *testing.T) {
	s := NewSweeper(&countingStore{}, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, s.Start())
}
