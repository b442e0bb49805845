// Package models holds the service-neutral reading list types passed between readers, matcher and engine.
package models

import "fmt"

// SourceStatus is the reading status vocabulary of the authoritative list.
type SourceStatus string

const (
	SourcePlanning  SourceStatus = "planning"
	SourceReading   SourceStatus = "reading"
	SourceCompleted SourceStatus = "completed"
	SourcePaused    SourceStatus = "paused"
	SourceDropped   SourceStatus = "dropped"
	SourceRepeating SourceStatus = "repeating"
)

// SourceStatuses lists every source status; a status map must cover all of them.
func SourceStatuses() []SourceStatus {
	return []SourceStatus{SourcePlanning, SourceReading, SourceCompleted, SourcePaused, SourceDropped, SourceRepeating}
}

// ParseSourceStatus accepts the canonical names.
func ParseSourceStatus(s string) (SourceStatus, error) {
	for _, st := range SourceStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source status %q", s)
}

// TargetStatus is a status in the target service's vocabulary.
type TargetStatus string

// SourceEntry is one title of the authoritative list.
type SourceEntry struct {
	ID        string
	Title     string
	AltTitles []string
	Status    SourceStatus
	Progress  int
}

// Titles returns the canonical title followed by the alternates.
func (e SourceEntry) Titles() []string {
	out := make([]string, 0, 1+len(e.AltTitles))
	out = append(out, e.Title)
	return append(out, e.AltTitles...)
}

// TargetEntry is one title of the target service.
// Listed is false for catalog search hits the user does not follow yet.
type TargetEntry struct {
	ID        string
	Title     string
	AltTitles []string
	Status    TargetStatus
	Progress  int
	Listed    bool
}

// Titles returns the canonical title followed by the alternates.
func (e TargetEntry) Titles() []string {
	out := make([]string, 0, 1+len(e.AltTitles))
	out = append(out, e.Title)
	return append(out, e.AltTitles...)
}

// NewEntry is what a create call adds to the target list.
// CatalogID is the target id found by search, empty when the catalog had no match.
type NewEntry struct {
	CatalogID string
	Title     string
	Status    TargetStatus
	Progress  int
}

// Change is a partial update; nil fields are left alone.
type Change struct {
	Status   *TargetStatus
	Progress *int
}
