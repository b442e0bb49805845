// Package mangaparser reads exported reading lists (MyAnimeList XML, Comick CSV) as a sync source.
package mangaparser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Another0Noob/mangadex-sync/internal/mangaparser/comickparser"
	"github.com/Another0Noob/mangadex-sync/internal/mangaparser/malparser"
	"github.com/Another0Noob/mangadex-sync/internal/models"
)

func Parse(path string) ([]models.SourceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseFromBytes(data, path)
}

// ParseFromBytes parses file content directly from memory
func ParseFromBytes(data []byte, filename string) ([]models.SourceEntry, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	reader := bytes.NewReader(data)

	switch ext {
	case ".csv":
		return comickparser.ParseComickReader(reader)
	case ".xml":
		out, err := malparser.ParseMALReader(reader)
		if err != nil {
			return nil, err
		}
		return malparser.Entries(out)
	default:
		return nil, fmt.Errorf("unknown file format: %s (must be .csv or .xml)", ext)
	}
}

// FileSource serves an export file as the authoritative list.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file " + filepath.Base(f.path) }

// FetchList parses the file on every call.
func (f *FileSource) FetchList(ctx context.Context) ([]models.SourceEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := Parse(f.path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return entries, nil
}
