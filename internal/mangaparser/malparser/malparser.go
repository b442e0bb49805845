package malparser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Another0Noob/mangadex-sync/internal/models"
)

type MALData struct {
	Entries []Manga `xml:"manga"`
}

type Manga struct {
	ID           int    `xml:"manga_mangadb_id"`
	Title        string `xml:"manga_title"`
	ReadChapters int    `xml:"my_read_chapters"`
	MyStatus     string `xml:"my_status"`
}

// ParseMALReader parses MAL XML data from any io.Reader
func ParseMALReader(reader io.Reader) (*MALData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	var malData MALData
	if err := xml.Unmarshal(data, &malData); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	return &malData, nil
}

// MALStatus maps the export's my_status values.
func MALStatus(s string) (models.SourceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reading", "1":
		return models.SourceReading, nil
	case "completed", "2":
		return models.SourceCompleted, nil
	case "on-hold", "on hold", "3":
		return models.SourcePaused, nil
	case "dropped", "4":
		return models.SourceDropped, nil
	case "plan to read", "6":
		return models.SourcePlanning, nil
	}
	return "", fmt.Errorf("unknown MAL status %q", s)
}

// Entries converts the export to source entries. Titles without a status are rejected;
// duplicate MAL ids keep the first row.
func Entries(manga *MALData) ([]models.SourceEntry, error) {
	out := make([]models.SourceEntry, 0, len(manga.Entries))
	seen := make(map[string]struct{}, len(manga.Entries))
	for _, m := range manga.Entries {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			continue
		}
		status, err := MALStatus(m.MyStatus)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", title, err)
		}
		id := strconv.Itoa(m.ID)
		if m.ID == 0 {
			id = "title:" + title
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, models.SourceEntry{
			ID:       id,
			Title:    title,
			Status:   status,
			Progress: m.ReadChapters,
		})
	}
	return out, nil
}
