package mangadexapi

import (
	"encoding/json"

	"github.com/google/uuid"
)

type AuthForm struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Complete reports whether every field of the password grant is set.
func (a AuthForm) Complete() bool {
	return a.Username != "" && a.Password != "" && a.ClientID != "" && a.ClientSecret != ""
}

// Token represents an authentication token.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ContentRating for manga search
type ContentRating string

const (
	ContentRatingSafe         ContentRating = "safe"
	ContentRatingSuggestive   ContentRating = "suggestive"
	ContentRatingErotica      ContentRating = "erotica"
	ContentRatingPornographic ContentRating = "pornographic"
)

// ReadingStatus for user manga reading status
type ReadingStatus string

const (
	ReadingStatusReading    ReadingStatus = "reading"
	ReadingStatusOnHold     ReadingStatus = "on_hold"
	ReadingStatusPlanToRead ReadingStatus = "plan_to_read"
	ReadingStatusDropped    ReadingStatus = "dropped"
	ReadingStatusReReading  ReadingStatus = "re_reading"
	ReadingStatusCompleted  ReadingStatus = "completed"
)

// ReadingStatuses lists the statuses MangaDex accepts.
func ReadingStatuses() []ReadingStatus {
	return []ReadingStatus{
		ReadingStatusReading,
		ReadingStatusOnHold,
		ReadingStatusPlanToRead,
		ReadingStatusDropped,
		ReadingStatusReReading,
		ReadingStatusCompleted,
	}
}

// OrderParams represents ordering options, e.g. {"relevance": "desc"}.
type OrderParams map[string]string

// QueryParams are the query options shared by the manga, follows and chapter endpoints.
type QueryParams struct {
	Limit              int             `url:"limit,omitempty"`
	Offset             int             `url:"offset,omitempty"`
	Title              string          `url:"title,omitempty"`
	IDs                []uuid.UUID     `url:"ids[],omitempty"`
	ContentRating      []ContentRating `url:"contentRating[],omitempty"`
	TranslatedLanguage []string        `url:"translatedLanguage[],omitempty"`
	Grouped            bool            `url:"grouped,omitempty"`
	Order              OrderParams     `url:"order,omitempty"`
}

// Envelope is the common MangaDex response wrapper.
type Envelope struct {
	Result   string          `json:"result"`
	Response string          `json:"response"`
	Data     json.RawMessage `json:"data"`
	Limit    *int            `json:"limit,omitempty"`
	Offset   *int            `json:"offset,omitempty"`
	Total    *int            `json:"total,omitempty"`
	Errors   []APIError      `json:"errors,omitempty"`
}

// APIError represents an error object in the API response.
type APIError struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Context string `json:"context,omitempty"`
}

// Manga represents a manga object from the MangaDex API.
type Manga struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes MangaAttributes `json:"attributes"`
}

// MangaAttributes represents the attributes of a manga.
type MangaAttributes struct {
	Title            map[string]string   `json:"title"`
	AltTitles        []map[string]string `json:"altTitles"`
	OriginalLanguage string              `json:"originalLanguage"`
	LastChapter      string              `json:"lastChapter"`
	Status           string              `json:"status"`
	ContentRating    ContentRating       `json:"contentRating"`
}

// Chapter represents a chapter object from the MangaDex API.
type Chapter struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    ChapterAttributes `json:"attributes"`
	Relationships []Relationship    `json:"relationships"`
}

// ChapterAttributes holds the chapter number as MangaDex reports it ("12", "12.5", "" for oneshots).
type ChapterAttributes struct {
	Volume             string `json:"volume"`
	Chapter            string `json:"chapter"`
	Title              string `json:"title"`
	TranslatedLanguage string `json:"translatedLanguage"`
}

// Relationship represents a relationship object from the MangaDex API.
type Relationship struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
