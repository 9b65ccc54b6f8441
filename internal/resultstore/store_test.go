package resultstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/testutil"
	"github.com/banshee-data/memristive.report/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenWithClock(filepath.Join(t.TempDir(), "results.db"), timeutil.NewSteppingClock(epoch, time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func classifySwitching(t *testing.T) *ivsweep.Result {
	t.Helper()
	c, err := ivsweep.NewClassifier(ivsweep.DefaultConfig())
	require.NoError(t, err)
	v, i := testutil.SwitchingSweep(testutil.DefaultSwitchingOptions())
	res, err := c.Classify(ivsweep.Input{Voltage: v, Current: i, Metadata: map[string]any{"device_id": "w3-d12"}})
	require.NoError(t, err)
	return res
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)
	v, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(context.Background(), "a.csv", classifySwitching(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", rec.Source)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Save(context.Background(), "mem", classifySwitching(t))
	require.NoError(t, err)
	counts, err := s.CountByType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[ivsweep.DeviceType]int{ivsweep.Memristive: 1}, counts)
}

func TestSaveAndGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	res := classifySwitching(t)

	id, err := s.Save(ctx, "sweeps/d12.csv", res)
	require.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "sweeps/d12.csv", rec.Source)
	assert.Equal(t, "w3-d12", rec.DeviceID)
	assert.Equal(t, ivsweep.Memristive, rec.DeviceType)
	assert.Equal(t, res.Confidence, rec.Confidence)
	assert.Equal(t, ivsweep.DefaultWeightsVersion, rec.WeightsVersion)
	assert.Equal(t, res.Warnings, rec.Warnings)
	assert.Equal(t, epoch, rec.CreatedAt)
	if diff := cmp.Diff(res, rec.Result); diff != "" {
		t.Errorf("stored result mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_NilWarningsStoredAsEmpty(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Save(context.Background(), "x", &ivsweep.Result{DeviceType: ivsweep.Unknown})
	require.NoError(t, err)

	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{}, rec.Warnings)
}

func TestSave_NilResult(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Save(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestGet_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "not-a-uuid")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = s.Get(ctx, "6f1c2a9e-58d4-4a4e-9d0c-1f2b3c4d5e6f")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListBySourceAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	res := classifySwitching(t)

	var ids []string
	for _, src := range []string{"a.csv", "b.csv", "a.csv", "c.csv"} {
		id, err := s.Save(ctx, src, res)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	bySource, err := s.ListBySource(ctx, "a.csv")
	require.NoError(t, err)
	require.Len(t, bySource, 2)
	assert.Equal(t, ids[0], bySource[0].ID)
	assert.Equal(t, ids[2], bySource[1].ID)
	assert.True(t, bySource[0].CreatedAt.Before(bySource[1].CreatedAt))

	none, err := s.ListBySource(ctx, "missing.csv")
	require.NoError(t, err)
	assert.Empty(t, none)

	recent, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	got := []string{recent[0].ID, recent[1].ID, recent[2].ID}
	assert.Equal(t, []string{ids[3], ids[2], ids[1]}, got)

	_, err = s.Recent(ctx, 0)
	assert.Error(t, err)
}

func TestSave_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	res := classifySwitching(t)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 5; k++ {
				if _, err := s.Save(ctx, "batch", res); err != nil {
					t.Errorf("save: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	all, err := s.ListBySource(ctx, "batch")
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestSave_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Save(ctx, "x", classifySwitching(t))
	assert.Error(t, err)
}

func TestSetLogWriters_Streams(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	s := openTestStore(t)
	_, err := s.Save(context.Background(), "logged.csv", classifySwitching(t))
	require.NoError(t, err)

	if !strings.Contains(ops.String(), "opened results database") {
		t.Errorf("expected open on ops stream, got %q", ops.String())
	}
	if !strings.HasPrefix(ops.String(), "[resultstore] ") {
		t.Errorf("expected '[resultstore]' prefix, got %q", ops.String())
	}
	if !strings.Contains(diag.String(), "logged.csv memristive") {
		t.Errorf("expected save on diag stream, got %q", diag.String())
	}
}
