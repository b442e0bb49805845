// Package reconcile plans and applies the mutations that bring a target reading list in line
// with the authoritative source list.
package reconcile

import (
	"fmt"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/match"
	"github.com/Another0Noob/mangadex-sync/internal/models"
)

// Action is the mutation planned for one source entry.
type Action string

const (
	ActionNoop           Action = "noop"
	ActionCreate         Action = "create"
	ActionUpdateStatus   Action = "update-status"
	ActionUpdateProgress Action = "update-progress"
	ActionUpdateBoth     Action = "update-both"
)

// Plan is the mutation planned for one source entry.
//
// Target is the matched list entry for updates, the catalog hit to add for creates, and nil
// when a create has nothing to start from. Status and Progress are the desired target state.
type Plan struct {
	Action     Action              `json:"action"`
	Source     models.SourceEntry  `json:"source"`
	Target     *models.TargetEntry `json:"target,omitempty"`
	Confidence match.Confidence    `json:"confidence"`
	Status     models.TargetStatus `json:"status"`
	Progress   int                 `json:"progress"`
	Reason     string              `json:"reason,omitempty"`
}

// Change is the partial update for update actions.
func (p Plan) Change() models.Change {
	var c models.Change
	if p.Action == ActionUpdateStatus || p.Action == ActionUpdateBoth {
		st := p.Status
		c.Status = &st
	}
	if p.Action == ActionUpdateProgress || p.Action == ActionUpdateBoth {
		pr := p.Progress
		c.Progress = &pr
	}
	return c
}

// NewEntry is the create payload.
func (p Plan) NewEntry() models.NewEntry {
	e := models.NewEntry{
		Title:    p.Source.Title,
		Status:   p.Status,
		Progress: p.Progress,
	}
	if p.Target != nil {
		e.CatalogID = p.Target.ID
	}
	return e
}

// Planner decides one Plan per match result. It is a pure function of its inputs.
type Planner struct {
	statuses StatusMap
}

func NewPlanner(statuses StatusMap) *Planner {
	return &Planner{statuses: statuses}
}

// Plan decides the mutation for src given its match result.
func (p *Planner) Plan(src models.SourceEntry, res match.Result) (Plan, error) {
	desired, ok := p.statuses.Target(src.Status)
	if !ok {
		return Plan{}, apperr.Configf("no target status for source status %q", src.Status)
	}

	plan := Plan{
		Source:     src,
		Confidence: res.Confidence,
		Status:     desired,
		Progress:   max(src.Progress, 0),
	}

	if !res.Matched() {
		plan.Action = ActionCreate
		plan.Reason = "no match"
		return plan, nil
	}

	tgt := *res.Target
	plan.Target = &tgt
	if !tgt.Listed {
		plan.Action = ActionCreate
		plan.Reason = fmt.Sprintf("catalog hit (%s)", res.Confidence)
		return plan, nil
	}

	statusDiffers := tgt.Status != desired
	progressDiffers := plan.Progress > tgt.Progress
	if plan.Progress < tgt.Progress {
		plan.Progress = tgt.Progress
	}

	switch {
	case statusDiffers && progressDiffers:
		plan.Action = ActionUpdateBoth
	case statusDiffers:
		plan.Action = ActionUpdateStatus
	case progressDiffers:
		plan.Action = ActionUpdateProgress
	default:
		plan.Action = ActionNoop
		plan.Reason = "in sync"
	}
	if src.Progress < tgt.Progress {
		if plan.Action == ActionNoop {
			plan.Reason = "target progress ahead"
		} else {
			plan.Reason = "target progress ahead, kept"
		}
	}
	return plan, nil
}

// PlanAll plans every result in order. When two source entries resolve to the same target id
// the first keeps its plan and later ones become noop.
func (p *Planner) PlanAll(results []match.Result) ([]Plan, error) {
	plans := make([]Plan, 0, len(results))
	claimed := make(map[string]string, len(results))
	for _, res := range results {
		plan, err := p.Plan(res.Source, res)
		if err != nil {
			return nil, err
		}
		if plan.Target != nil && plan.Target.ID != "" {
			if first, dup := claimed[plan.Target.ID]; dup {
				plan.Action = ActionNoop
				plan.Reason = fmt.Sprintf("duplicate target (claimed by %q)", first)
			} else {
				claimed[plan.Target.ID] = plan.Source.Title
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
