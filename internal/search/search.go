// Package search indexes story titles and text for full-text lookup.
// Meilisearch serves queries when it is reachable; PostgreSQL full-text
// search over the stories table is the fallback.
package search

import (
	"context"
	"html"
	"regexp"
	"strings"

	"storyeditor/api/internal/story"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push stories into a search index.
type Indexer interface {
	IndexStory(record StoryRecord) error
	IndexStories(records []StoryRecord) error
	DeleteStory(id string) error
}

// StoryRecord is the data we index for a story.
type StoryRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	PageCount int    `json:"pageCount"`
}

var (
	markupTag  = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NewStoryRecord extracts the searchable text of s: the content of every
// text element, in page and paint order, with markup removed.
func NewStoryRecord(id string, s story.Story) StoryRecord {
	return StoryRecord{
		ID:        id,
		Title:     s.Title,
		Text:      PlainText(s),
		PageCount: len(s.Pages),
	}
}

func PlainText(s story.Story) string {
	parts := make([]string, 0)
	for _, page := range s.Pages {
		for _, element := range page.Elements {
			if element.Type != story.ElementText {
				continue
			}
			if text := stripMarkup(element.Content); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func stripMarkup(content string) string {
	text := markupTag.ReplaceAllString(content, " ")
	text = strings.ReplaceAll(html.UnescapeString(text), "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
