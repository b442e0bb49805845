package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/match"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/Another0Noob/mangadex-sync/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("%w: all 3 items failed", apperr.ErrSystemicFailure)))
	assert.Equal(t, 1, exitCode(apperr.Configf("bad")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestRenderReport(t *testing.T) {
	outcomes := []reconcile.Outcome{
		{
			Plan:     reconcile.Plan{Action: reconcile.ActionCreate, Source: models.SourceEntry{Title: "Berserk"}},
			Result:   reconcile.Applied,
			TargetID: "md-1",
			Attempts: 1,
		},
		{
			Plan:     reconcile.Plan{Action: reconcile.ActionUpdateStatus, Source: models.SourceEntry{Title: "Vagabond"}},
			Result:   reconcile.Failed,
			Reason:   "retries exhausted after 3 attempts",
			Attempts: 3,
		},
		{
			Plan:   reconcile.Plan{Action: reconcile.ActionNoop, Source: models.SourceEntry{Title: "Monster"}, Reason: "in sync"},
			Result: reconcile.Skipped,
			Reason: "in sync",
		},
	}
	report := reconcile.NewReport("run-1", outcomes)
	report.Source = "anilist reader"
	report.Target = "mangadex"
	report.Duration = 1500 * time.Millisecond

	out := renderReport(report)
	for _, want := range []string{"anilist reader", "mangadex", "run-1", "Berserk", "md-1", "Vagabond", "retries exhausted", "Monster", "in sync"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "Vagabond (update-status, 3 attempts): retries exhausted after 3 attempts")
	assert.NotContains(t, out, "Every title failed")
}

func TestRenderReport_Systemic(t *testing.T) {
	report := reconcile.NewReport("run-2", []reconcile.Outcome{{
		Plan:   reconcile.Plan{Action: reconcile.ActionCreate, Source: models.SourceEntry{Title: "Berserk"}},
		Result: reconcile.Failed,
		Reason: "503",
	}})

	out := renderReport(report)
	assert.Contains(t, out, "Every title failed")
	require.Error(t, report.Err())
	assert.Equal(t, 2, exitCode(report.Err()))
}

func TestRenderPlans(t *testing.T) {
	plans := []reconcile.Plan{
		{Action: reconcile.ActionCreate, Source: models.SourceEntry{Title: "Berserk"}, Status: "reading", Progress: 12},
		{Action: reconcile.ActionUpdateBoth, Source: models.SourceEntry{Title: "Vagabond"}, Target: &models.TargetEntry{ID: "md-2"}},
		{Action: reconcile.ActionNoop, Source: models.SourceEntry{Title: "Monster"}, Reason: "in sync"},
	}
	out := renderPlans(plans)
	assert.Contains(t, out, "Berserk")
	assert.Contains(t, out, "md-2")
	assert.Contains(t, out, "3 planned: 1 create, 1 update, 1 noop")
}

func TestMatchViews(t *testing.T) {
	results := []match.Result{
		{
			Source:     models.SourceEntry{Title: "Shingeki no Kyojin"},
			Target:     &models.TargetEntry{ID: "md-1", Title: "Attack on Titan", Listed: true},
			Confidence: match.AlternateTitle,
			Score:      1,
		},
		{Source: models.SourceEntry{Title: "Unknown Manga"}, Confidence: match.None},
	}
	views := matchViews(results)
	require.Len(t, views, 2)
	assert.Equal(t, "md-1", views[0].TargetID)
	assert.True(t, views[0].Listed)
	assert.Empty(t, views[1].TargetID)

	out := renderMatches(views)
	assert.Contains(t, out, "Attack on Titan")
	assert.Contains(t, out, "0 exact, 1 alternate-title, 0 fuzzy, 1 unmatched")
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)

	path, err := writeExport(dir, day, []string{"a1", "b2"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025-03-07-mangadex.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{"https://mangadex.org/title/a1", "https://mangadex.org/title/b2"}, lines)
}

func TestWriteExport_UnwritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	_, err := writeExport(dir, time.Now(), []string{"a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create export file")
}
