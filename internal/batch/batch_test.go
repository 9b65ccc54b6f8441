package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/testutil"
	"github.com/banshee-data/memristive.report/internal/timeutil"
)

// countingClassifier records concurrency and delegates to a real classifier.
type countingClassifier struct {
	inner   *ivsweep.Classifier
	active  atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
	onCall  func(n int32)
	release chan struct{}
}

func (c *countingClassifier) Classify(in ivsweep.Input) (*ivsweep.Result, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	calls := c.calls.Add(1)
	if c.onCall != nil {
		c.onCall(calls)
	}
	if c.release != nil {
		<-c.release
	}
	return c.inner.Classify(in)
}

func newClassifier(t *testing.T) *ivsweep.Classifier {
	t.Helper()
	c, err := ivsweep.NewClassifier(ivsweep.DefaultConfig())
	require.NoError(t, err)
	return c
}

func capacitorJob(name string) Job {
	v, i := testutil.Capacitor(200, 1e-6, 60)
	return InputJob(name, ivsweep.Input{Voltage: v, Current: i})
}

func TestRun_OrderAndIsolation(t *testing.T) {
	jobs := []Job{
		capacitorJob("a"),
		InputJob("too-short", ivsweep.Input{Voltage: []float64{1}, Current: []float64{1}}),
		{Name: "load-fails", Load: func() (ivsweep.Input, error) { return ivsweep.Input{}, errors.New("disk on fire") }},
		{Name: "no-loader"},
		capacitorJob("b"),
	}
	outcomes, err := Run(context.Background(), newClassifier(t), jobs, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, len(jobs))

	for idx, o := range outcomes {
		assert.Equal(t, jobs[idx].Name, o.Name)
	}
	assert.Equal(t, ivsweep.Capacitive, outcomes[0].Result.DeviceType)
	assert.True(t, errors.Is(outcomes[1].Err, ivsweep.ErrInsufficientData))
	assert.Contains(t, outcomes[1].Err.Error(), "too-short")
	assert.EqualError(t, outcomes[2].Err, "disk on fire")
	assert.Error(t, outcomes[3].Err)
	assert.Equal(t, ivsweep.Capacitive, outcomes[4].Result.DeviceType)

	s := Summarize(outcomes)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 0, s.Skipped)
	assert.Equal(t, 2, s.ByType[ivsweep.Capacitive])
}

func TestRun_RespectsWorkerLimit(t *testing.T) {
	c := &countingClassifier{inner: newClassifier(t), release: make(chan struct{})}
	jobs := make([]Job, 12)
	for k := range jobs {
		jobs[k] = capacitorJob(fmt.Sprintf("j%d", k))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range jobs {
			c.release <- struct{}{}
		}
	}()
	outcomes, err := Run(context.Background(), c, jobs, 3)
	wg.Wait()

	require.NoError(t, err)
	assert.Len(t, outcomes, 12)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
	assert.Equal(t, int32(12), c.calls.Load())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Run(ctx, newClassifier(t), []Job{capacitorJob("a"), capacitorJob("b")}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	for _, o := range outcomes {
		assert.True(t, o.Skipped)
		assert.Nil(t, o.Result)
	}
	assert.Equal(t, 2, Summarize(outcomes).Skipped)
}

func TestRun_CancelStopsScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &countingClassifier{inner: newClassifier(t), onCall: func(n int32) {
		if n == 1 {
			cancel()
		}
	}}
	jobs := []Job{capacitorJob("a"), capacitorJob("b"), capacitorJob("c")}

	outcomes, err := Run(ctx, c, jobs, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, outcomes[0].Result, "the job that was running completes")
	assert.True(t, outcomes[1].Skipped)
	assert.True(t, outcomes[2].Skipped)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestRun_NilClassifier(t *testing.T) {
	_, err := Run(context.Background(), nil, nil, 1)
	assert.Error(t, err)
}

func TestRunWithClock_Duration(t *testing.T) {
	clock := timeutil.NewSteppingClock(time.Unix(1700000000, 0), 5*time.Millisecond)
	outcomes, err := RunWithClock(context.Background(), newClassifier(t), []Job{capacitorJob("a")}, 1, clock)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, outcomes[0].Duration)
}

func TestFileJob(t *testing.T) {
	fsys := fstest.MapFS{
		"ok.csv":  {Data: []byte("V,I\n0,0\n1,1e-3\n")},
		"bad.csv": {Data: []byte("V,I\n0,x\n")},
	}
	outcomes, err := Run(context.Background(), newClassifier(t), []Job{
		FileJob(fsys, "ok.csv"),
		FileJob(fsys, "bad.csv"),
	}, 0)
	require.NoError(t, err)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, 2, outcomes[0].Result.Points)
	assert.Error(t, outcomes[1].Err)
}

func TestSummary_WarningsByFrequency(t *testing.T) {
	s := Summary{Warnings: map[string]int{"b": 2, "a": 2, "c": 5}}
	assert.Equal(t, []string{"c", "a", "b"}, s.WarningsByFrequency())
}

func TestRun_LogsFailures(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	_, err := Run(context.Background(), newClassifier(t), []Job{{Name: "broken"}}, 1)
	require.NoError(t, err)
	if !strings.Contains(ops.String(), "job broken failed") {
		t.Errorf("expected failure on ops stream, got %q", ops.String())
	}
	if !strings.Contains(ops.String(), "[batch]") {
		t.Errorf("expected '[batch]' prefix, got %q", ops.String())
	}
}

func TestSetLogWriters_DuringRun(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)
	defer ivsweep.SetLogWriters(nil, nil, nil)

	cc := &countingClassifier{inner: newClassifier(t)}
	cc.onCall = func(n int32) {
		// Swap writers while other workers are logging.
		if n%2 == 0 {
			SetLogWriters(io.Discard, io.Discard, io.Discard)
			ivsweep.SetLogWriters(io.Discard, io.Discard, io.Discard)
		} else {
			SetLogWriters(nil, nil, nil)
			ivsweep.SetLogWriters(nil, nil, nil)
		}
	}
	jobs := make([]Job, 32)
	for k := range jobs {
		jobs[k] = capacitorJob(fmt.Sprintf("c%02d", k))
	}

	outcomes, err := Run(context.Background(), cc, jobs, 8)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NoError(t, o.Err, o.Name)
	}
	assert.Equal(t, int32(32), cc.calls.Load())
}
