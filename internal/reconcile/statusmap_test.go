package reconcile

import (
	"testing"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []models.TargetStatus{"reading", "on_hold", "plan_to_read", "dropped", "re_reading", "completed"}

func mustStatusMap(t *testing.T) StatusMap {
	t.Helper()
	sm, err := NewStatusMap(DefaultStatusTable(), vocabulary)
	require.NoError(t, err)
	return sm
}

func TestNewStatusMap_DefaultIsTotal(t *testing.T) {
	sm := mustStatusMap(t)
	for _, st := range models.SourceStatuses() {
		got, ok := sm.Target(st)
		assert.True(t, ok, st)
		assert.Contains(t, vocabulary, got)
	}
	assert.Len(t, sm.Table(), len(models.SourceStatuses()))
	assert.Equal(t, "paused -> on_hold", sm.Table()[3])
}

func TestNewStatusMap_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]string)
		want   string
	}{
		{
			name:   "missing source status",
			mutate: func(m map[string]string) { delete(m, "dropped") },
			want:   "no entry for dropped",
		},
		{
			name:   "unknown target status",
			mutate: func(m map[string]string) { m["paused"] = "shelved" },
			want:   `unknown target status "shelved"`,
		},
		{
			name:   "unknown source status",
			mutate: func(m map[string]string) { m["abandoned"] = "dropped" },
			want:   `unknown source status "abandoned"`,
		},
		{
			name:   "empty target status",
			mutate: func(m map[string]string) { m["reading"] = " " },
			want:   "empty status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := DefaultStatusTable()
			tt.mutate(raw)
			_, err := NewStatusMap(raw, vocabulary)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewStatusMap_KeysAreCaseInsensitive(t *testing.T) {
	raw := map[string]string{}
	for k, v := range DefaultStatusTable() {
		raw[" "+k+" "] = v
	}
	raw["READING"] = "re_reading"
	delete(raw, " reading ")

	sm, err := NewStatusMap(raw, nil)
	require.NoError(t, err)
	got, _ := sm.Target(models.SourceReading)
	assert.Equal(t, models.TargetStatus("re_reading"), got)
}
