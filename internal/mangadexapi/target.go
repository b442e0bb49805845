package mangadexapi

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/google/uuid"
)

// searchLimit caps catalog hits per query.
const searchLimit = 10

// Target exposes a MangaDex library as a sync target.
//
// MangaDex has no progress counter. Progress is the highest whole chapter number among
// the read markers, and setting progress n marks every English chapter numbered n or lower.
type Target struct {
	client *Client
}

func NewTarget(c *Client) *Target {
	return &Target{client: c}
}

func (t *Target) Name() string { return "mangadex" }

// Search queries the catalog by title. Hits come back unlisted.
func (t *Target) Search(ctx context.Context, title string) ([]models.TargetEntry, error) {
	qp := QueryParams{
		Title: title,
		Limit: searchLimit,
		ContentRating: []ContentRating{
			ContentRatingSafe,
			ContentRatingSuggestive,
			ContentRatingErotica,
			ContentRatingPornographic,
		},
		Order: OrderParams{"relevance": "desc"},
	}
	list, err := t.client.GetMangaList(ctx, qp)
	if err != nil {
		return nil, err
	}
	out := make([]models.TargetEntry, 0, len(list))
	for _, m := range list {
		out = append(out, toEntry(m, "", 0, false))
	}
	return out, nil
}

// List returns every followed manga plus every manga carrying a reading status.
func (t *Target) List(ctx context.Context) ([]models.TargetEntry, error) {
	followed, err := t.client.GetAllFollowed(ctx)
	if err != nil {
		return nil, fmt.Errorf("followed manga: %w", err)
	}
	statuses, err := t.client.GetMangaStatusList(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading statuses: %w", err)
	}

	byID := make(map[string]Manga, len(followed)+len(statuses))
	for _, m := range followed {
		byID[m.ID] = m
	}
	var missing []uuid.UUID
	for id := range statuses {
		if _, ok := byID[id]; ok {
			continue
		}
		if u, err := uuid.Parse(id); err == nil {
			missing = append(missing, u)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })
	for start := 0; start < len(missing); start += pageSize {
		end := min(start+pageSize, len(missing))
		page, err := t.client.GetMangaList(ctx, QueryParams{IDs: missing[start:end], Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("library manga: %w", err)
		}
		for _, m := range page {
			byID[m.ID] = m
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	progress, err := t.progress(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	out := make([]models.TargetEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, toEntry(byID[id], models.TargetStatus(statuses[id]), progress[id], true))
	}
	return out, nil
}

// Create follows the catalog entry, then sets status and progress.
func (t *Target) Create(ctx context.Context, e models.NewEntry) (string, error) {
	if e.CatalogID == "" {
		return "", &apperr.RemoteError{
			Op:   "create",
			Kind: apperr.Permanent,
			Err:  fmt.Errorf("no catalog match for %q", e.Title),
		}
	}
	if err := t.client.FollowManga(ctx, e.CatalogID); err != nil {
		return "", err
	}
	if e.Status != "" {
		if err := t.client.UpdateMangaStatus(ctx, e.CatalogID, ReadingStatus(e.Status)); err != nil {
			return "", err
		}
	}
	if e.Progress > 0 {
		if err := t.setProgress(ctx, e.CatalogID, e.Progress); err != nil {
			return "", err
		}
	}
	return e.CatalogID, nil
}

func (t *Target) Update(ctx context.Context, id string, change models.Change) error {
	if change.Status != nil {
		if err := t.client.UpdateMangaStatus(ctx, id, ReadingStatus(*change.Status)); err != nil {
			return err
		}
	}
	if change.Progress != nil {
		if err := t.setProgress(ctx, id, *change.Progress); err != nil {
			return err
		}
	}
	return nil
}

func (t *Target) setProgress(ctx context.Context, id string, n int) error {
	feed, err := t.client.GetMangaFeed(ctx, id)
	if err != nil {
		return err
	}
	var read []string
	for _, ch := range feed {
		num, ok := chapterNumber(ch.Attributes.Chapter)
		if ok && num <= float64(n) {
			read = append(read, ch.ID)
		}
	}
	for start := 0; start < len(read); start += pageSize {
		end := min(start+pageSize, len(read))
		if err := t.client.MarkChaptersRead(ctx, id, read[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// progress maps manga id to the highest whole chapter number read.
func (t *Target) progress(ctx context.Context, ids []string) (map[string]int, error) {
	uuids := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			uuids = append(uuids, u)
		}
	}
	markers, err := t.client.GetReadMarkers(ctx, uuids)
	if err != nil {
		return nil, err
	}

	var chapterIDs []uuid.UUID
	for _, chapters := range markers {
		for _, c := range chapters {
			if u, err := uuid.Parse(c); err == nil {
				chapterIDs = append(chapterIDs, u)
			}
		}
	}
	chapters, err := t.client.GetChapters(ctx, chapterIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(markers))
	for _, ch := range chapters {
		num, ok := chapterNumber(ch.Attributes.Chapter)
		if !ok {
			continue
		}
		mangaID := ch.mangaID()
		if mangaID == "" {
			continue
		}
		if p := int(math.Floor(num)); p > out[mangaID] {
			out[mangaID] = p
		}
	}
	return out, nil
}

func (c Chapter) mangaID() string {
	for _, r := range c.Relationships {
		if r.Type == "manga" {
			return r.ID
		}
	}
	return ""
}

func chapterNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

func toEntry(m Manga, status models.TargetStatus, progress int, listed bool) models.TargetEntry {
	title, alts := titlesOf(m.Attributes)
	return models.TargetEntry{
		ID:        m.ID,
		Title:     title,
		AltTitles: alts,
		Status:    status,
		Progress:  progress,
		Listed:    listed,
	}
}

// titlesOf picks the canonical title (en, then romanized, then any language in key order)
// and returns every other distinct title as an alternate.
func titlesOf(a MangaAttributes) (string, []string) {
	langs := make([]string, 0, len(a.Title))
	for lang := range a.Title {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	canonical := ""
	if t := a.Title["en"]; t != "" {
		canonical = t
	}
	for _, lang := range langs {
		if canonical != "" {
			break
		}
		if strings.HasSuffix(lang, "-ro") {
			canonical = a.Title[lang]
		}
	}
	for _, lang := range langs {
		if canonical != "" {
			break
		}
		canonical = a.Title[lang]
	}

	seen := map[string]struct{}{canonical: {}}
	var alts []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		alts = append(alts, t)
	}
	for _, lang := range langs {
		add(a.Title[lang])
	}
	for _, alt := range a.AltTitles {
		keys := make([]string, 0, len(alt))
		for lang := range alt {
			keys = append(keys, lang)
		}
		sort.Strings(keys)
		for _, lang := range keys {
			add(alt[lang])
		}
	}
	return canonical, alts
}
