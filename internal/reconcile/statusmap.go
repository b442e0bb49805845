package reconcile

import (
	"strings"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/models"
)

// DefaultStatusTable maps every source status to its MangaDex reading status.
func DefaultStatusTable() map[string]string {
	return map[string]string{
		string(models.SourcePlanning):  "plan_to_read",
		string(models.SourceReading):   "reading",
		string(models.SourceCompleted): "completed",
		string(models.SourcePaused):    "on_hold",
		string(models.SourceDropped):   "dropped",
		string(models.SourceRepeating): "re_reading",
	}
}

// StatusMap translates source statuses into the target vocabulary. It is total: a value
// built by NewStatusMap has an entry for every source status.
type StatusMap struct {
	m map[models.SourceStatus]models.TargetStatus
}

// NewStatusMap validates raw (source status name -> target status) against the target
// vocabulary. A nil vocabulary accepts any non-empty target status.
func NewStatusMap(raw map[string]string, vocabulary []models.TargetStatus) (StatusMap, error) {
	valid := make(map[models.TargetStatus]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		valid[v] = struct{}{}
	}

	m := make(map[models.SourceStatus]models.TargetStatus, len(raw))
	for k, v := range raw {
		src, err := models.ParseSourceStatus(strings.TrimSpace(strings.ToLower(k)))
		if err != nil {
			return StatusMap{}, apperr.Configf("status map: %v", err)
		}
		tgt := models.TargetStatus(strings.TrimSpace(v))
		if tgt == "" {
			return StatusMap{}, apperr.Configf("status map: %s maps to an empty status", src)
		}
		if _, ok := valid[tgt]; len(valid) > 0 && !ok {
			return StatusMap{}, apperr.Configf("status map: %s maps to unknown target status %q", src, tgt)
		}
		m[src] = tgt
	}

	var missing []string
	for _, st := range models.SourceStatuses() {
		if _, ok := m[st]; !ok {
			missing = append(missing, string(st))
		}
	}
	if len(missing) > 0 {
		return StatusMap{}, apperr.Configf("status map has no entry for %s", strings.Join(missing, ", "))
	}
	return StatusMap{m: m}, nil
}

// Target returns the target status for st.
func (s StatusMap) Target(st models.SourceStatus) (models.TargetStatus, bool) {
	t, ok := s.m[st]
	return t, ok
}

// Table returns the mapping as "source -> target" lines in source status order.
func (s StatusMap) Table() []string {
	out := make([]string, 0, len(s.m))
	for _, st := range models.SourceStatuses() {
		out = append(out, string(st)+" -> "+string(s.m[st]))
	}
	return out
}
