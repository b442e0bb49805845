package reconcile

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/charmbracelet/log"
)

// Result is how one plan ended.
type Result string

const (
	Applied Result = "applied"
	Failed  Result = "failed"
	Skipped Result = "skipped"
)

// Outcome records the execution of one plan.
type Outcome struct {
	Plan     Plan   `json:"plan"`
	Result   Result `json:"result"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
	TargetID string `json:"target_id,omitempty"`
	Err      error  `json:"-"`
}

// ExecutorOptions configures an Executor. Zero values fall back to defaults.
type ExecutorOptions struct {
	Workers        int
	Policy         RetryPolicy
	RequestSpacing time.Duration // minimum gap between two calls of one worker
	RequestTimeout time.Duration // bound on a single call
	Logger         *log.Logger
}

// Executor applies plans against a target with a fixed pool of workers.
type Executor struct {
	target Target
	opts   ExecutorOptions
	logger *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewExecutor(target Target, opts ExecutorOptions) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Executor{
		target: target,
		opts:   opts,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Execute applies plans and returns one outcome per plan, in plan order.
//
// Noop plans are skipped without a call. Once ctx is done no further plan is started and the
// rest are skipped; calls already running finish on a context detached from ctx.
func (e *Executor) Execute(ctx context.Context, plans []Plan) []Outcome {
	outcomes := make([]Outcome, len(plans))
	pending := make([]int, 0, len(plans))
	for i, p := range plans {
		if p.Action == ActionNoop {
			outcomes[i] = Outcome{Plan: p, Result: Skipped, Reason: p.Reason}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return outcomes
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(e.opts.Workers, len(pending)); w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.worker(ctx, worker, jobs, plans, outcomes)
		}(w)
	}

dispatch:
	for n, i := range pending {
		if ctx.Err() != nil {
			e.timeOut(pending[n:], plans, outcomes)
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			e.timeOut(pending[n:], plans, outcomes)
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

func (e *Executor) timeOut(indices []int, plans []Plan, outcomes []Outcome) {
	for _, i := range indices {
		outcomes[i] = timedOut(plans[i])
	}
}

func timedOut(p Plan) Outcome {
	return Outcome{Plan: p, Result: Skipped, Reason: apperr.ErrRunTimedOut.Error(), Err: apperr.ErrRunTimedOut}
}

// worker owns outcomes[i] for every index it receives.
func (e *Executor) worker(ctx context.Context, worker int, jobs <-chan int, plans []Plan, outcomes []Outcome) {
	var last time.Time
	for i := range jobs {
		if ctx.Err() != nil {
			outcomes[i] = timedOut(plans[i])
			continue
		}
		outcomes[i] = e.apply(ctx, worker, plans[i], &last)
	}
}

func (e *Executor) apply(ctx context.Context, worker int, p Plan, last *time.Time) Outcome {
	logger := e.logger.With("worker", worker, "title", p.Source.Title, "action", p.Action)
	out := Outcome{Plan: p}

	for attempt := 1; ; attempt++ {
		if err := e.space(ctx, *last); err != nil {
			if attempt == 1 {
				return timedOut(p)
			}
			out.Result = Failed
			out.Reason = "run timed out before retry: " + out.Reason
			return out
		}

		*last = e.now()
		id, err := e.call(ctx, p)
		out.Attempts = attempt
		if err == nil {
			out.Result = Applied
			out.TargetID = id
			out.Reason = ""
			out.Err = nil
			logger.Debug("applied", "attempt", attempt, "id", id)
			return out
		}

		out.Err = err
		out.Reason = err.Error()
		d := e.opts.Policy.Decide(attempt, err)
		if !d.Retry {
			out.Result = Failed
			out.Reason = d.Reason
			logger.Warn("mutation failed", "attempt", attempt, "err", err)
			return out
		}

		logger.Debug("retrying", "attempt", attempt, "delay", d.Delay, "err", err)
		if err := e.sleep(ctx, d.Delay); err != nil {
			out.Result = Failed
			out.Reason = "run timed out during backoff: " + out.Reason
			return out
		}
	}
}

// space waits until RequestSpacing has passed since last.
func (e *Executor) space(ctx context.Context, last time.Time) error {
	if e.opts.RequestSpacing <= 0 || last.IsZero() {
		return ctx.Err()
	}
	wait := e.opts.RequestSpacing - e.now().Sub(last)
	if wait <= 0 {
		return ctx.Err()
	}
	return e.sleep(ctx, wait)
}

// call runs one mutation on a context that survives the run deadline but not RequestTimeout.
func (e *Executor) call(ctx context.Context, p Plan) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RequestTimeout)
	defer cancel()

	switch p.Action {
	case ActionCreate:
		return e.target.Create(callCtx, p.NewEntry())
	default:
		if p.Target == nil {
			return "", &apperr.RemoteError{Op: string(p.Action), Kind: apperr.Permanent, Err: apperr.ErrNotFound}
		}
		return p.Target.ID, e.target.Update(callCtx, p.Target.ID, p.Change())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
