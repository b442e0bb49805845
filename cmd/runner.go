package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/anilist"
	"github.com/Another0Noob/mangadex-sync/internal/config"
	"github.com/Another0Noob/mangadex-sync/internal/mangadexapi"
	"github.com/Another0Noob/mangadex-sync/internal/mangaparser"
	"github.com/Another0Noob/mangadex-sync/internal/reconcile"
	"github.com/Another0Noob/mangadex-sync/internal/shared"
	"github.com/Another0Noob/mangadex-sync/internal/throttle"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// runner holds what every command needs: the validated config, a logger and the output writer.
type runner struct {
	config *config.Config
	logger *log.Logger
	output io.Writer
}

func newRunner(cmd *cobra.Command) (*runner, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := shared.NewLogger(cmd.ErrOrStderr())
	shared.SetVerbose(logger, verbose)
	return &runner{config: cfg, logger: logger, output: cmd.OutOrStdout()}, nil
}

func (r *runner) mangadex() *mangadexapi.Client {
	c := mangadexapi.NewClient(
		mangadexapi.WithThrottle(throttle.New(r.config.MangaDex.RequestsPerSecond, time.Second)),
	)
	c.SetAuth(r.config.MangaDex.AuthForm())
	if session := r.config.MangaDex.Session(); session != nil {
		c.SetToken(session)
	}
	return c
}

// source is the export file when one is given, the AniList user's list otherwise.
func (r *runner) source(input string) (reconcile.Source, error) {
	if input != "" {
		return mangaparser.NewFileSource(input), nil
	}
	if err := r.config.RequireAniList(); err != nil {
		return nil, err
	}
	opts := []anilist.Option{
		anilist.WithThrottle(throttle.New(r.config.AniList.RequestsPerSecond, time.Second)),
	}
	if r.config.AniList.Token != "" {
		opts = append(opts, anilist.WithToken(r.config.AniList.Token))
	}
	return anilist.NewClient(r.config.AniList.Username, opts...), nil
}

func (r *runner) engine(input string, dryRun bool) (*reconcile.Engine, error) {
	src, err := r.source(input)
	if err != nil {
		return nil, err
	}
	statuses, err := r.config.Statuses()
	if err != nil {
		return nil, err
	}
	for _, line := range statuses.Table() {
		r.logger.Debug("status map", "entry", line)
	}

	sc := r.config.Sync
	target := mangadexapi.NewTarget(r.mangadex())
	return reconcile.NewEngine(src, target, statuses, reconcile.Options{
		Workers:        sc.Workers,
		Policy:         sc.RetryPolicy(),
		Threshold:      sc.FuzzyThreshold,
		Timeout:        sc.Timeout,
		RequestTimeout: sc.RequestTimeout,
		RequestSpacing: sc.RequestSpacing,
		SearchCatalog:  sc.SearchCatalog,
		DryRun:         dryRun,
		Logger:         r.logger,
	}), nil
}

// withTimeout bounds commands that read but never mutate by the run budget.
func (r *runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.Sync.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.config.Sync.Timeout)
}

func (r *runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
