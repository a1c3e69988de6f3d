package model

import (
	"encoding/json"
	"time"
)

// Note types accepted by the API.
const (
	NoteTypeStandard    = "standard"
	NoteTypePlan        = "plan"
	NoteTypeCode        = "code"
	NoteTypeCredentials = "credentials"
)

func ValidNoteType(t string) bool {
	switch t {
	case NoteTypeStandard, NoteTypePlan, NoteTypeCode, NoteTypeCredentials:
		return true
	}
	return false
}

// Note mirrors a row of `notes`.  Metadata is opaque JSON owned by the client.
type Note struct {
	ID         string          `json:"id"`
	UserID     string          `json:"-"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Type       string          `json:"type"`
	Starred    bool            `json:"starred"`
	Tags       []string        `json:"tags"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Categories []string        `json:"categories,omitempty"`
	Preview    string          `json:"preview,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NotePatch is a partial update; nil fields are left untouched.
type NotePatch struct {
	Title    *string
	Content  *string
	Type     *string
	Starred  *bool
	Tags     *[]string
	Metadata *json.RawMessage
}

func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Type == nil && p.Starred == nil && p.Tags == nil && p.Metadata == nil
}

// NoteFilter drives the notes listing query.
type NoteFilter struct {
	UserID     string
	Search     string
	Starred    *bool
	Type       string
	CategoryID string
	Tags       []string
	Sort       string // column from the sort whitelist
	Desc       bool
	Limit      int
	Offset     int
}

// NoteStats summarises a user's notes.
type NoteStats struct {
	TotalNotes      int        `json:"totalNotes"`
	StandardNotes   int        `json:"standardNotes"`
	PlanNotes       int        `json:"planNotes"`
	CodeNotes       int        `json:"codeNotes"`
	CredentialNotes int        `json:"credentialNotes"`
	StarredNotes    int        `json:"starredNotes"`
	TotalCharacters int64      `json:"totalCharacters"`
	LastUpdated     *time.Time `json:"lastUpdated"`
	TopTags         []TagCount `json:"topTags"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
