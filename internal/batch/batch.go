// Package batch classifies many sweeps concurrently with a bounded number
// of workers. Each job succeeds or fails on its own; only cancellation of
// the surrounding context stops the run early.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/timeutil"
	"github.com/banshee-data/memristive.report/internal/tracefile"
)

// Classifier is the part of *ivsweep.Classifier a batch needs.
type Classifier interface {
	Classify(in ivsweep.Input) (*ivsweep.Result, error)
}

// Job is one sweep to classify. Load is called on a worker goroutine so
// inputs are only held in memory while they are being processed.
type Job struct {
	Name string
	Load func() (ivsweep.Input, error)
}

// InputJob wraps an already loaded sweep.
func InputJob(name string, in ivsweep.Input) Job {
	return Job{Name: name, Load: func() (ivsweep.Input, error) { return in, nil }}
}

// FileJob reads the sweep from fsys when the job runs.
func FileJob(fsys fs.FS, name string) Job {
	return Job{Name: name, Load: func() (ivsweep.Input, error) { return tracefile.Load(fsys, name) }}
}

// Outcome is the result of one job. Exactly one of Result and Err is set
// for jobs that ran; Skipped marks jobs that never started because the run
// was cancelled.
type Outcome struct {
	Name     string
	Result   *ivsweep.Result
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Run classifies every job with at most workers goroutines and returns the
// outcomes in job order. A non-positive workers value uses GOMAXPROCS. The
// returned error is the context error when the run was cancelled.
func Run(ctx context.Context, c Classifier, jobs []Job, workers int) ([]Outcome, error) {
	return RunWithClock(ctx, c, jobs, workers, timeutil.RealClock{})
}

// RunWithClock is Run with the clock used to time each job.
func RunWithClock(ctx context.Context, c Classifier, jobs []Job, workers int, clock timeutil.Clock) ([]Outcome, error) {
	if c == nil {
		return nil, errors.New("batch: nil classifier")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(workers)
	for idx, job := range jobs {
		outcomes[idx].Name = job.Name
		if ctx.Err() != nil {
			outcomes[idx].Skipped = true
			continue
		}
		idx, job := idx, job // per-iteration copies; go directive is pre-1.22
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[idx].Skipped = true
				return nil
			}
			outcomes[idx] = runJob(c, job, clock)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		skipped := 0
		for _, o := range outcomes {
			if o.Skipped {
				skipped++
			}
		}
		opsf("run cancelled: %d of %d jobs skipped", skipped, len(jobs))
		return outcomes, err
	}
	return outcomes, nil
}

func runJob(c Classifier, job Job, clock timeutil.Clock) Outcome {
	start := clock.Now()
	out := Outcome{Name: job.Name}
	tracef("start %s", job.Name)

	if job.Load == nil {
		out.Err = fmt.Errorf("%s: no loader", job.Name)
	} else if in, err := job.Load(); err != nil {
		out.Err = err
	} else if res, err := c.Classify(in); err != nil {
		out.Err = fmt.Errorf("%s: %w", job.Name, err)
	} else {
		out.Result = res
	}
	out.Duration = clock.Since(start)

	if out.Err != nil {
		opsf("job %s failed: %v", job.Name, out.Err)
	} else {
		diagf("job %s: %s (%.3f) in %s", job.Name, out.Result.DeviceType, out.Result.Confidence, out.Duration)
	}
	return out
}

// Summary aggregates a finished run.
type Summary struct {
	Total    int                        `json:"total"`
	Failed   int                        `json:"failed"`
	Skipped  int                        `json:"skipped"`
	ByType   map[ivsweep.DeviceType]int `json:"by_type"`
	Warnings map[string]int             `json:"warnings"`
}

// Summarize counts outcomes by device type and warning flag.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		Total:    len(outcomes),
		ByType:   map[ivsweep.DeviceType]int{},
		Warnings: map[string]int{},
	}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case o.Err != nil:
			s.Failed++
		case o.Result != nil:
			s.ByType[o.Result.DeviceType]++
			for _, w := range o.Result.Warnings {
				s.Warnings[w]++
			}
		}
	}
	return s
}

// WarningsByFrequency returns the warning flags ordered from most to least
// frequent, alphabetically within equal counts.
func (s Summary) WarningsByFrequency() []string {
	out := make([]string, 0, len(s.Warnings))
	for w := range s.Warnings {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.Warnings[out[i]] != s.Warnings[out[j]] {
			return s.Warnings[out[i]] > s.Warnings[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
