package comickparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Another0Noob/mangadex-sync/internal/models"
)

// ParseComickReader parses a Comick CSV export. The parser is header-aware: columns are mapped
// by normalized header name, falling back to the usual comick export layout:
//
//	hid,title,type,rating,origination,read,last_read,synonyms,mal,anilist,mangaupdates
//
// A "status" column is used when present. Without one, rows with read chapters are
// reading and the rest are planning. Rows without a title are skipped.
func ParseComickReader(reader io.Reader) ([]models.SourceEntry, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	headerMap := make(map[string]int, len(header))
	for i, h := range header {
		headerMap[normalizeHeader(h)] = i
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	defaults := map[string]int{
		"hid":      0,
		"title":    1,
		"read":     5,
		"synonyms": 7,
	}

	getIndex := func(name string) int {
		if i, ok := headerMap[name]; ok {
			return i
		}
		if d, ok := defaults[name]; ok {
			return d
		}
		return -1
	}

	hidIdx := getIndex("hid")
	titleIdx := getIndex("title")
	readIdx := getIndex("read")
	synIdx := getIndex("synonyms")
	statusIdx := getIndex("status")

	get := func(rec []string, idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	var out []models.SourceEntry
	seen := make(map[string]struct{})
	for line, rec := range records {
		if len(rec) == 0 {
			continue
		}

		title := get(rec, titleIdx)
		if title == "" {
			continue
		}

		progress := parseRead(get(rec, readIdx))

		var status models.SourceStatus
		if raw := get(rec, statusIdx); raw != "" {
			status, err = comickStatus(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", line+2, err)
			}
		} else if progress > 0 {
			status = models.SourceReading
		} else {
			status = models.SourcePlanning
		}

		id := get(rec, hidIdx)
		if id == "" {
			id = "title:" + title
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, models.SourceEntry{
			ID:        id,
			Title:     title,
			AltTitles: splitSynonyms(get(rec, synIdx), title),
			Status:    status,
			Progress:  progress,
		})
	}

	return out, nil
}

// parseRead accepts "12", "12.5" and empty. Fractional chapters count as the whole chapter below.
func parseRead(s string) int {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(math.Floor(f))
}

func comickStatus(s string) (models.SourceStatus, error) {
	switch normalizeHeader(s) {
	case "reading", "current":
		return models.SourceReading, nil
	case "completed":
		return models.SourceCompleted, nil
	case "on_hold", "onhold", "paused":
		return models.SourcePaused, nil
	case "dropped":
		return models.SourceDropped, nil
	case "plan_to_read", "planning", "plan":
		return models.SourcePlanning, nil
	case "rereading", "re_reading", "repeating":
		return models.SourceRepeating, nil
	}
	return "", fmt.Errorf("unknown comick status %q", s)
}

// splitSynonyms splits on ',', ';' or '|', trims, and drops the canonical title itself.
func splitSynonyms(s, title string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{strings.ToLower(title): {}}
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// normalizeHeader converts header string to a normalized canonical form used
// for comparison: lowercased, trimmed, spaces -> underscore, and common
// punctuation removed. This helps match headers like "Last Read" and "last_read".
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	h = strings.ReplaceAll(h, ".", "")
	h = strings.ReplaceAll(h, "\"", "")
	h = strings.ReplaceAll(h, "`", "")
	// collapse multiple underscores
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}
