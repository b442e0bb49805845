package reconcile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/match"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Source is the authoritative reading list.
type Source interface {
	Name() string
	FetchList(ctx context.Context) ([]models.SourceEntry, error)
}

// Target is the reading list brought in line with the source.
type Target interface {
	Name() string
	// Search returns catalog entries for a title query. Hits the user already lists may come
	// back with Listed false; the engine takes their state from the list.
	Search(ctx context.Context, title string) ([]models.TargetEntry, error)
	List(ctx context.Context) ([]models.TargetEntry, error)
	Create(ctx context.Context, e models.NewEntry) (string, error)
	Update(ctx context.Context, id string, change models.Change) error
}

// maxSearchQueries bounds the catalog queries made for one unmatched entry.
const maxSearchQueries = 4

// Options configures an Engine.
type Options struct {
	Workers        int
	Policy         RetryPolicy
	Threshold      float64
	Timeout        time.Duration // wall-clock budget of a whole run
	RequestTimeout time.Duration
	RequestSpacing time.Duration
	// SearchCatalog looks up unmatched entries in the target catalog.
	SearchCatalog bool
	DryRun        bool
	Logger        *log.Logger
}

// Engine runs read, match, plan and execute for one source and target.
type Engine struct {
	source  Source
	target  Target
	matcher *match.Matcher
	planner *Planner
	opts    Options
	logger  *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(source Source, target Target, statuses StatusMap, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{
		source:  source,
		target:  target,
		matcher: match.New(opts.Threshold),
		planner: NewPlanner(statuses),
		opts:    opts,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Match reads both lists and matches every source entry. Entries without a match in the
// target list are looked up in the catalog when SearchCatalog is set.
func (e *Engine) Match(ctx context.Context) ([]match.Result, error) {
	var sourceList []models.SourceEntry
	var targetList []models.TargetEntry
	var targetTimedOut bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sourceList, err = e.source.FetchList(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w before %s was read: %w", apperr.ErrRunTimedOut, e.source.Name(), err)
			}
			return fmt.Errorf("read %s: %w", e.source.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		targetList, err = e.target.List(gctx)
		if err != nil {
			// Without the target list every entry plans as unmatched; execution skips them all.
			if ctx.Err() != nil && !apperr.IsAuth(err) {
				targetTimedOut = true
				return nil
			}
			return fmt.Errorf("read %s: %w", e.target.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if targetTimedOut {
		e.logger.Warn("run timed out reading target list", "target", e.target.Name())
		targetList = nil
	}
	e.logger.Info("lists read", "source", len(sourceList), "target", len(targetList))

	listed := make(map[string]models.TargetEntry, len(targetList))
	for i := range targetList {
		targetList[i].Listed = true
		listed[targetList[i].ID] = targetList[i]
	}

	idx := e.matcher.Index(targetList)
	results := make([]match.Result, len(sourceList))
	var unmatched []int
	for i, src := range sourceList {
		results[i] = idx.Match(src)
		if !results[i].Matched() {
			unmatched = append(unmatched, i)
		}
	}
	e.logger.Info("matched against list",
		"candidates", idx.Len(),
		"threshold", e.matcher.Threshold(),
		"matched", len(sourceList)-len(unmatched),
		"unmatched", len(unmatched),
	)

	if !e.opts.SearchCatalog || len(unmatched) == 0 {
		return results, nil
	}

	sg, sctx := errgroup.WithContext(ctx)
	sg.SetLimit(e.opts.Workers)
	for _, i := range unmatched {
		i := i
		sg.Go(func() error {
			if sctx.Err() != nil {
				return nil
			}
			res, err := e.searchCatalog(sctx, results[i].Source, listed)
			switch {
			case err == nil:
				results[i] = res
			case apperr.IsAuth(err):
				return err
			case ctx.Err() != nil:
				// Budget spent: the entry stays unmatched and execution skips it.
			default:
				e.logger.Warn("catalog search failed", "title", results[i].Source.Title, "err", err)
			}
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return nil, fmt.Errorf("search %s: %w", e.target.Name(), err)
	}
	if ctx.Err() != nil {
		e.logger.Warn("run timed out during catalog search", "unmatched", len(unmatched))
	}
	return results, nil
}

// searchCatalog tries the search queries of every source title until one yields a match.
func (e *Engine) searchCatalog(ctx context.Context, src models.SourceEntry, listed map[string]models.TargetEntry) (match.Result, error) {
	none := match.Result{Source: src, Confidence: match.None}

	var queries []string
	seen := make(map[string]struct{})
	for _, title := range src.Titles() {
		for _, q := range match.SearchQueries(title) {
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			queries = append(queries, q)
		}
	}
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	for _, q := range queries {
		hits, err := e.target.Search(ctx, q)
		if err != nil {
			return none, err
		}
		for i, h := range hits {
			if l, ok := listed[h.ID]; ok {
				hits[i].Status, hits[i].Progress, hits[i].Listed = l.Status, l.Progress, true
			}
		}
		if res := e.matcher.Match(src, hits); res.Matched() {
			e.logger.Debug("catalog hit", "title", src.Title, "query", q, "id", res.Target.ID, "confidence", res.Confidence)
			return res, nil
		}
	}
	return none, nil
}

// Plan matches and plans without mutating anything.
func (e *Engine) Plan(ctx context.Context) ([]Plan, error) {
	results, err := e.Match(ctx)
	if err != nil {
		return nil, err
	}
	return e.planner.PlanAll(results)
}

// Run plans and executes one sync within the Timeout budget. The returned error is set only
// when the run could not start; per-title failures are in the report.
func (e *Engine) Run(ctx context.Context, runID string) (*Report, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	logger := e.logger.With("run", runID)
	started := time.Now()

	plans, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("planned", "items", len(plans))

	var outcomes []Outcome
	if e.opts.DryRun {
		outcomes = make([]Outcome, len(plans))
		for i, p := range plans {
			reason := "dry run"
			if p.Action == ActionNoop {
				reason = p.Reason
			}
			outcomes[i] = Outcome{Plan: p, Result: Skipped, Reason: reason}
		}
	} else {
		ex := NewExecutor(e.target, ExecutorOptions{
			Workers:        e.opts.Workers,
			Policy:         e.opts.Policy,
			RequestSpacing: e.opts.RequestSpacing,
			RequestTimeout: e.opts.RequestTimeout,
			Logger:         logger,
		})
		ex.sleep = e.sleep
		outcomes = ex.Execute(ctx, plans)
	}

	report := NewReport(runID, outcomes)
	report.Source = e.source.Name()
	report.Target = e.target.Name()
	report.DryRun = e.opts.DryRun
	report.StartedAt = started
	report.Duration = time.Since(started)

	logger.Info("run finished",
		"created", report.Summary.Created,
		"updated", report.Summary.Updated,
		"skipped", report.Summary.Skipped,
		"failed", report.Summary.Failed,
	)
	return report, nil
}
