package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep returns immediately and records the requested delays.
type recordSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestExecutor(target Target, opts ExecutorOptions) (*Executor, *recordSleep) {
	ex := NewExecutor(target, opts)
	rs := &recordSleep{}
	ex.sleep = rs.sleep
	return ex, rs
}

func updatePlan(id, title string, progress int) Plan {
	return Plan{
		Action:   ActionUpdateProgress,
		Source:   models.SourceEntry{Title: title, Progress: progress},
		Target:   &models.TargetEntry{ID: id, Title: title, Listed: true},
		Status:   "reading",
		Progress: progress,
	}
}

func TestExecutor_RateLimitRecovers(t *testing.T) {
	target := newMemTarget(models.TargetEntry{ID: "md-1", Title: "Chainsaw Man"})
	target.fail = func(op, title string, call int) error {
		if call <= 2 {
			return rateLimited(0)
		}
		return nil
	}
	ex, rs := newTestExecutor(target, ExecutorOptions{Workers: 2, Policy: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}})

	out := ex.Execute(context.Background(), []Plan{updatePlan("md-1", "Chainsaw Man", 10)})
	require.Len(t, out, 1)
	assert.Equal(t, Applied, out[0].Result)
	assert.Equal(t, 3, out[0].Attempts)
	assert.Equal(t, "md-1", out[0].TargetID)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rs.delays)
	assert.Equal(t, 10, target.get("md-1").Progress)
}

func TestExecutor_RateLimitExhausted(t *testing.T) {
	target := newMemTarget(models.TargetEntry{ID: "md-1", Title: "Chainsaw Man"})
	target.fail = func(op, title string, call int) error {
		if call <= 2 {
			return rateLimited(0)
		}
		return nil
	}
	ex, _ := newTestExecutor(target, ExecutorOptions{Policy: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}})

	out := ex.Execute(context.Background(), []Plan{updatePlan("md-1", "Chainsaw Man", 10)})
	assert.Equal(t, Failed, out[0].Result)
	assert.Equal(t, 2, out[0].Attempts)
	assert.Contains(t, out[0].Reason, "rate-limit exhausted")
	assert.Zero(t, target.get("md-1").Progress)
}

func TestExecutor_NoopSkippedWithoutCall(t *testing.T) {
	target := newMemTarget()
	ex, _ := newTestExecutor(target, ExecutorOptions{})

	out := ex.Execute(context.Background(), []Plan{{Action: ActionNoop, Reason: "in sync"}})
	assert.Equal(t, Skipped, out[0].Result)
	assert.Equal(t, "in sync", out[0].Reason)
	assert.Zero(t, out[0].Attempts)
	assert.Zero(t, target.mutationCount())
}

func TestExecutor_FailureIsolationAndOrder(t *testing.T) {
	var entries []models.TargetEntry
	var plans []Plan
	titles := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, title := range titles {
		entries = append(entries, models.TargetEntry{ID: "id-" + title, Title: title})
		plans = append(plans, updatePlan("id-"+title, title, 5))
	}
	target := newMemTarget(entries...)
	target.fail = func(op, title string, call int) error {
		if title == "C" {
			return apperr.FromStatus("update", 400, 0, errors.New("invalid payload"))
		}
		return nil
	}
	ex, _ := newTestExecutor(target, ExecutorOptions{Workers: 3})

	out := ex.Execute(context.Background(), plans)
	require.Len(t, out, len(plans))
	for i, o := range out {
		assert.Equal(t, titles[i], o.Plan.Source.Title)
		if titles[i] == "C" {
			assert.Equal(t, Failed, o.Result)
			assert.Equal(t, 1, o.Attempts, "permanent errors are not retried")
			assert.Contains(t, o.Reason, "invalid payload")
			continue
		}
		assert.Equal(t, Applied, o.Result, titles[i])
	}
}

func TestExecutor_CanceledRunSkipsEverything(t *testing.T) {
	target := newMemTarget(models.TargetEntry{ID: "md-1", Title: "A"}, models.TargetEntry{ID: "md-2", Title: "B"})
	ex, _ := newTestExecutor(target, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := ex.Execute(ctx, []Plan{updatePlan("md-1", "A", 1), updatePlan("md-2", "B", 1)})
	for _, o := range out {
		assert.Equal(t, Skipped, o.Result)
		assert.Equal(t, "run timed out", o.Reason)
		assert.ErrorIs(t, o.Err, apperr.ErrRunTimedOut)
	}
	assert.Zero(t, target.mutationCount())
}

func TestExecutor_InFlightCallSurvivesDeadline(t *testing.T) {
	target := newMemTarget(
		models.TargetEntry{ID: "md-1", Title: "A"},
		models.TargetEntry{ID: "md-2", Title: "B"},
		models.TargetEntry{ID: "md-3", Title: "C"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	var callErr error
	target.onUpdate = func(callCtx context.Context) {
		once.Do(func() {
			cancel()
			callErr = callCtx.Err()
		})
	}
	ex, _ := newTestExecutor(target, ExecutorOptions{Workers: 1})

	out := ex.Execute(ctx, []Plan{updatePlan("md-1", "A", 1), updatePlan("md-2", "B", 2), updatePlan("md-3", "C", 3)})
	require.NoError(t, callErr)
	assert.Equal(t, Applied, out[0].Result)
	assert.Equal(t, 1, target.get("md-1").Progress)
	for _, o := range out[1:] {
		assert.Equal(t, Skipped, o.Result)
		assert.Equal(t, "run timed out", o.Reason)
	}
}

func TestExecutor_BackoffObservesDeadline(t *testing.T) {
	target := newMemTarget(models.TargetEntry{ID: "md-1", Title: "A"})
	ctx, cancel := context.WithCancel(context.Background())
	target.fail = func(op, title string, call int) error {
		cancel()
		return apperr.FromStatus("update", 503, 0, nil)
	}
	ex, _ := newTestExecutor(target, ExecutorOptions{Policy: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}})

	out := ex.Execute(ctx, []Plan{updatePlan("md-1", "A", 1)})
	assert.Equal(t, Failed, out[0].Result)
	assert.Equal(t, 1, out[0].Attempts)
	assert.Contains(t, out[0].Reason, "run timed out during backoff")
}

func TestExecutor_WorkerSpacing(t *testing.T) {
	target := newMemTarget(models.TargetEntry{ID: "md-1", Title: "A"}, models.TargetEntry{ID: "md-2", Title: "B"})
	ex, rs := newTestExecutor(target, ExecutorOptions{Workers: 1, RequestSpacing: time.Hour})

	out := ex.Execute(context.Background(), []Plan{updatePlan("md-1", "A", 1), updatePlan("md-2", "B", 1)})
	assert.Equal(t, Applied, out[0].Result)
	assert.Equal(t, Applied, out[1].Result)
	require.Len(t, rs.delays, 1)
	assert.Greater(t, rs.delays[0], 59*time.Minute)
}
