package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/models"
)

type memSource struct {
	entries []models.SourceEntry
	err     error
}

func (s *memSource) Name() string { return "memory source" }

func (s *memSource) FetchList(ctx context.Context) ([]models.SourceEntry, error) {
	return s.entries, s.err
}

// memTarget is an in-memory target list with a search catalog and failure injection.
type memTarget struct {
	mu      sync.Mutex
	list    map[string]models.TargetEntry
	catalog []models.TargetEntry
	nextID  int

	// fail is consulted before each mutation; a non-nil error aborts it.
	fail     func(op, title string, call int) error
	onUpdate func(ctx context.Context)
	calls    map[string]int
	searches int

	// listDelay and searchDelay hold reads back until they pass or ctx is done.
	listDelay   time.Duration
	searchDelay time.Duration
}

func stall(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func newMemTarget(entries ...models.TargetEntry) *memTarget {
	t := &memTarget{list: make(map[string]models.TargetEntry), calls: make(map[string]int)}
	for _, e := range entries {
		e.Listed = true
		t.list[e.ID] = e
	}
	return t
}

func (t *memTarget) Name() string { return "memory target" }

func (t *memTarget) Search(ctx context.Context, title string) ([]models.TargetEntry, error) {
	if err := stall(ctx, t.searchDelay); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searches++
	out := make([]models.TargetEntry, len(t.catalog))
	copy(out, t.catalog)
	return out, nil
}

func (t *memTarget) List(ctx context.Context) ([]models.TargetEntry, error) {
	if err := stall(ctx, t.listDelay); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.TargetEntry, 0, len(t.list))
	for _, e := range t.list {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTarget) mutationCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		n += c
	}
	return n
}

func (t *memTarget) check(op, title string) error {
	t.mu.Lock()
	t.calls[op+" "+title]++
	n := t.calls[op+" "+title]
	fail := t.fail
	t.mu.Unlock()
	if fail != nil {
		return fail(op, title, n)
	}
	return nil
}

func (t *memTarget) Create(ctx context.Context, e models.NewEntry) (string, error) {
	if err := t.check("create", e.Title); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := e.CatalogID
	title := e.Title
	var alts []string
	if id == "" {
		t.nextID++
		id = fmt.Sprintf("new-%d", t.nextID)
	} else {
		for _, c := range t.catalog {
			if c.ID == id {
				title, alts = c.Title, c.AltTitles
			}
		}
	}
	t.list[id] = models.TargetEntry{ID: id, Title: title, AltTitles: alts, Status: e.Status, Progress: e.Progress, Listed: true}
	return id, nil
}

func (t *memTarget) Update(ctx context.Context, id string, change models.Change) error {
	if t.onUpdate != nil {
		t.onUpdate(ctx)
	}
	t.mu.Lock()
	title := t.list[id].Title
	t.mu.Unlock()
	if err := t.check("update", title); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.list[id]
	if !ok {
		return fmt.Errorf("no entry %s", id)
	}
	if change.Status != nil {
		e.Status = *change.Status
	}
	if change.Progress != nil {
		e.Progress = *change.Progress
	}
	t.list[id] = e
	return nil
}

func (t *memTarget) get(id string) models.TargetEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.list[id]
}
