package store

import (
	"encoding/json"
	"time"
)

// StoryRecord is one row of the stories table. Data holds the encoded story
// document at Version; BodyText is the plain text used for full-text search.
type StoryRecord struct {
	ID        string
	Title     string
	Version   int
	Data      json.RawMessage
	BodyText  string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StorySummary is the listing view of a story, without its document.
type StorySummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Version   int       `json:"version"`
	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}
