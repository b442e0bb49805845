package mangadexapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/google/uuid"
)

// pageSize is the largest limit the list endpoints accept.
const pageSize = 100

func (c *Client) GetMangaList(ctx context.Context, qp QueryParams) ([]Manga, error) {
	var list []Manga
	if err := c.doJSON(ctx, "search manga", http.MethodGet, "/manga", qp.ToValues(), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

type Stats struct {
	Limit  int
	Offset int
	Total  int
}

func (c *Client) GetFollowedMangaList(ctx context.Context, qp QueryParams) ([]Manga, Stats, error) {
	env, err := c.doEnvelope(ctx, "list follows", http.MethodGet, "/user/follows/manga", qp.ToValues(), nil)
	if err != nil {
		return nil, Stats{}, err
	}
	var s Stats
	if env.Limit != nil {
		s.Limit = *env.Limit
	}
	if env.Offset != nil {
		s.Offset = *env.Offset
	}
	if env.Total != nil {
		s.Total = *env.Total
	}
	if len(env.Data) == 0 {
		return nil, s, nil
	}

	var list []Manga
	if err := decodeData(env.Data, &list); err != nil {
		return nil, Stats{}, apperr.Malformed("list follows", err)
	}
	return list, s, nil
}

// GetAllFollowed pages through the follow list.
func (c *Client) GetAllFollowed(ctx context.Context) ([]Manga, error) {
	var all []Manga
	for offset := 0; ; offset += pageSize {
		page, stats, err := c.GetFollowedMangaList(ctx, QueryParams{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize || offset+len(page) >= stats.Total {
			return all, nil
		}
	}
}

// GetMangaStatusList returns the reading status of every manga in the library, keyed by manga id.
func (c *Client) GetMangaStatusList(ctx context.Context) (map[string]ReadingStatus, error) {
	var wrapper struct {
		Statuses map[string]ReadingStatus `json:"statuses"`
	}
	if err := c.doInto(ctx, "list statuses", http.MethodGet, "/manga/status", nil, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Statuses, nil
}

func (c *Client) FollowManga(ctx context.Context, id string) error {
	return c.doInto(ctx, "follow manga", http.MethodPost, "/manga/"+id+"/follow", nil, nil, nil)
}

func (c *Client) UpdateMangaStatus(ctx context.Context, id string, status ReadingStatus) error {
	if status == "" {
		return &apperr.RemoteError{Op: "update status", Kind: apperr.Permanent, Err: errors.New("empty status")}
	}
	body := struct {
		Status ReadingStatus `json:"status"`
	}{Status: status}
	return c.doInto(ctx, "update status", http.MethodPost, "/manga/"+id+"/status", nil, body, nil)
}

// GetReadMarkers returns the read chapter ids per manga.
func (c *Client) GetReadMarkers(ctx context.Context, mangaIDs []uuid.UUID) (map[string][]string, error) {
	out := make(map[string][]string, len(mangaIDs))
	for start := 0; start < len(mangaIDs); start += pageSize {
		end := min(start+pageSize, len(mangaIDs))
		var wrapper struct {
			Data map[string][]string `json:"data"`
		}
		qp := QueryParams{IDs: mangaIDs[start:end], Grouped: true}
		if err := c.doInto(ctx, "read markers", http.MethodGet, "/manga/read", qp.ToValues(), nil, &wrapper); err != nil {
			return nil, err
		}
		for id, chapters := range wrapper.Data {
			out[id] = append(out[id], chapters...)
		}
	}
	return out, nil
}

// GetChapters resolves chapter ids to chapters, in batches of pageSize.
func (c *Client) GetChapters(ctx context.Context, ids []uuid.UUID) ([]Chapter, error) {
	var all []Chapter
	for start := 0; start < len(ids); start += pageSize {
		end := min(start+pageSize, len(ids))
		qp := QueryParams{IDs: ids[start:end], Limit: pageSize}
		var page []Chapter
		if err := c.doJSON(ctx, "get chapters", http.MethodGet, "/chapter", qp.ToValues(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// GetMangaFeed lists the English chapters of a manga in chapter order.
func (c *Client) GetMangaFeed(ctx context.Context, id string) ([]Chapter, error) {
	var all []Chapter
	for offset := 0; ; offset += pageSize * 5 {
		qp := QueryParams{
			Limit:              pageSize * 5,
			Offset:             offset,
			TranslatedLanguage: []string{"en"},
			Order:              OrderParams{"chapter": "asc"},
		}
		env, err := c.doEnvelope(ctx, "manga feed", http.MethodGet, "/manga/"+id+"/feed", qp.ToValues(), nil)
		if err != nil {
			return nil, err
		}
		var page []Chapter
		if err := decodeData(env.Data, &page); err != nil {
			return nil, apperr.Malformed("manga feed", err)
		}
		all = append(all, page...)
		total := 0
		if env.Total != nil {
			total = *env.Total
		}
		if len(page) < pageSize*5 || offset+len(page) >= total {
			return all, nil
		}
	}
}

// MarkChaptersRead sets read markers on chapters of one manga.
func (c *Client) MarkChaptersRead(ctx context.Context, mangaID string, chapterIDs []string) error {
	if len(chapterIDs) == 0 {
		return nil
	}
	body := struct {
		ChapterIDsRead []string `json:"chapterIdsRead"`
	}{ChapterIDsRead: chapterIDs}
	return c.doInto(ctx, "mark read", http.MethodPost, "/manga/"+mangaID+"/read", nil, body, nil)
}
