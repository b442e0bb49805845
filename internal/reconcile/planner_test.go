package reconcile

import (
	"testing"

	"github.com/Another0Noob/mangadex-sync/internal/match"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matched(src models.SourceEntry, tgt models.TargetEntry, c match.Confidence) match.Result {
	return match.Result{Source: src, Target: &tgt, Confidence: c, Score: 1}
}

func TestPlanner_Plan(t *testing.T) {
	chainsaw := models.SourceEntry{ID: "1", Title: "Chainsaw Man", Status: models.SourceReading, Progress: 10}
	onePiece := models.SourceEntry{ID: "2", Title: "One Piece", Status: models.SourceReading, Progress: 1050}

	tests := []struct {
		name         string
		src          models.SourceEntry
		res          match.Result
		wantAction   Action
		wantStatus   models.TargetStatus
		wantProgress int
		wantChange   models.Change
	}{
		{
			name:         "no match creates",
			src:          chainsaw,
			res:          match.Result{Source: chainsaw},
			wantAction:   ActionCreate,
			wantStatus:   "reading",
			wantProgress: 10,
		},
		{
			name:         "catalog hit creates",
			src:          chainsaw,
			res:          matched(chainsaw, models.TargetEntry{ID: "md-1", Title: "Chainsaw Man"}, match.Exact),
			wantAction:   ActionCreate,
			wantStatus:   "reading",
			wantProgress: 10,
		},
		{
			name:         "target progress ahead is kept",
			src:          onePiece,
			res:          matched(onePiece, models.TargetEntry{ID: "md-2", Status: "reading", Progress: 1100, Listed: true}, match.Exact),
			wantAction:   ActionNoop,
			wantStatus:   "reading",
			wantProgress: 1100,
		},
		{
			name:         "status still compared when progress is ahead",
			src:          onePiece,
			res:          matched(onePiece, models.TargetEntry{ID: "md-2", Status: "on_hold", Progress: 1100, Listed: true}, match.Exact),
			wantAction:   ActionUpdateStatus,
			wantStatus:   "reading",
			wantProgress: 1100,
			wantChange:   models.Change{Status: ptr(models.TargetStatus("reading"))},
		},
		{
			name:         "progress behind",
			src:          onePiece,
			res:          matched(onePiece, models.TargetEntry{ID: "md-2", Status: "reading", Progress: 1000, Listed: true}, match.Fuzzy),
			wantAction:   ActionUpdateProgress,
			wantStatus:   "reading",
			wantProgress: 1050,
			wantChange:   models.Change{Progress: ptr(1050)},
		},
		{
			name:         "both differ",
			src:          onePiece,
			res:          matched(onePiece, models.TargetEntry{ID: "md-2", Status: "dropped", Progress: 3, Listed: true}, match.AlternateTitle),
			wantAction:   ActionUpdateBoth,
			wantStatus:   "reading",
			wantProgress: 1050,
			wantChange:   models.Change{Status: ptr(models.TargetStatus("reading")), Progress: ptr(1050)},
		},
	}

	p := NewPlanner(mustStatusMap(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(tt.src, tt.res)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, plan.Action)
			assert.Equal(t, tt.wantStatus, plan.Status)
			assert.Equal(t, tt.wantProgress, plan.Progress)
			if tt.wantAction != ActionCreate && tt.wantAction != ActionNoop {
				assert.Equal(t, tt.wantChange, plan.Change())
			}
		})
	}
}

func TestPlanner_CreatePayload(t *testing.T) {
	src := models.SourceEntry{Title: "Berserk", Status: models.SourcePaused, Progress: 40}
	p := NewPlanner(mustStatusMap(t))

	plan, err := p.Plan(src, matched(src, models.TargetEntry{ID: "md-9", Title: "Berserk"}, match.Exact))
	require.NoError(t, err)
	assert.Equal(t, models.NewEntry{CatalogID: "md-9", Title: "Berserk", Status: "on_hold", Progress: 40}, plan.NewEntry())

	plan, err = p.Plan(src, match.Result{Source: src})
	require.NoError(t, err)
	assert.Empty(t, plan.NewEntry().CatalogID)
}

func TestPlanner_TotalOverStatusesAndTiers(t *testing.T) {
	p := NewPlanner(mustStatusMap(t))
	tiers := []match.Confidence{match.None, match.Fuzzy, match.AlternateTitle, match.Exact}
	for _, st := range models.SourceStatuses() {
		for _, c := range tiers {
			src := models.SourceEntry{Title: "X", Status: st, Progress: 5}
			res := match.Result{Source: src, Confidence: c}
			if c != match.None {
				res.Target = &models.TargetEntry{ID: "t", Status: "reading", Progress: 7, Listed: true}
			}
			plan, err := p.Plan(src, res)
			require.NoError(t, err, "%s/%s", st, c)
			assert.GreaterOrEqual(t, plan.Progress, 5)
			if c != match.None {
				assert.GreaterOrEqual(t, plan.Progress, 7, "progress must not decrease")
			}
		}
	}
}

func TestPlanner_UnmappedStatus(t *testing.T) {
	p := NewPlanner(StatusMap{})
	_, err := p.Plan(models.SourceEntry{Status: models.SourceReading}, match.Result{})
	assert.Error(t, err)
}

func TestPlanner_PlanAllDuplicateTarget(t *testing.T) {
	tgt := models.TargetEntry{ID: "md-1", Title: "Attack on Titan", Status: "plan_to_read", Listed: true}
	a := models.SourceEntry{ID: "1", Title: "Attack on Titan", Status: models.SourceReading, Progress: 3}
	b := models.SourceEntry{ID: "2", Title: "Attack on Titan (Colored)", Status: models.SourceCompleted, Progress: 139}
	c := models.SourceEntry{ID: "3", Title: "Vinland Saga", Status: models.SourceReading}

	plans, err := NewPlanner(mustStatusMap(t)).PlanAll([]match.Result{
		matched(a, tgt, match.Exact),
		matched(b, tgt, match.Fuzzy),
		{Source: c},
	})
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, ActionUpdateBoth, plans[0].Action)
	assert.Equal(t, ActionNoop, plans[1].Action)
	assert.Contains(t, plans[1].Reason, "duplicate target")
	assert.Equal(t, ActionCreate, plans[2].Action)
}

func ptr[T any](v T) *T { return &v }
