package reconcile

import (
	"fmt"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
)

// Summary counts outcomes by kind.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report is the outcome of one run.
type Report struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcomes  []Outcome     `json:"outcomes"`
	Summary   Summary       `json:"summary"`
}

func NewReport(runID string, outcomes []Outcome) *Report {
	r := &Report{RunID: runID, Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Result {
		case Applied:
			if o.Plan.Action == ActionCreate {
				r.Summary.Created++
			} else {
				r.Summary.Updated++
			}
		case Failed:
			r.Summary.Failed++
		default:
			r.Summary.Skipped++
		}
	}
	return r
}

// Systemic reports whether every item of the run failed. Items skipped or already in sync make a
// run with failures partial, not systemic.
func (r *Report) Systemic() bool {
	return len(r.Outcomes) > 0 && r.Summary.Failed == len(r.Outcomes)
}

// Err returns ErrSystemicFailure for a systemic outage and nil otherwise, partial failure included.
func (r *Report) Err() error {
	if r.Systemic() {
		return fmt.Errorf("%w: all %d items failed", apperr.ErrSystemicFailure, r.Summary.Failed)
	}
	return nil
}

// Failures returns the failed outcomes in plan order.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Result == Failed {
			out = append(out, o)
		}
	}
	return out
}
