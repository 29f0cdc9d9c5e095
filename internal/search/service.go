package search

import (
	"context"
	"log"
)

// index is a Searcher that can also be written to.
type index interface {
	Searcher
	Indexer
}

// recordSource loads every story's search record.
type recordSource interface {
	LoadAllRecords(ctx context.Context) ([]StoryRecord, error)
}

// fallbackSearcher answers queries when the primary index cannot.
type fallbackSearcher interface {
	Searcher
	recordSource
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  index
	fallback fallbackSearcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if meili != nil {
		s.primary = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

// Health reports which backend is answering queries. Degraded is set when
// Meilisearch is configured but unreachable, or when nothing can search.
type Health struct {
	Backend  string `json:"backend"`
	Degraded bool   `json:"degraded"`
}

func (s *Service) Health() Health {
	switch {
	case s.primary != nil && s.primary.Healthy():
		return Health{Backend: "meilisearch"}
	case s.fallback != nil:
		return Health{Backend: "pgfts", Degraded: s.primary != nil}
	default:
		return Health{Backend: "none", Degraded: true}
	}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexStory indexes a story (fire-and-forget to Meilisearch). The fallback
// reads the stories table directly and needs no indexing.
func (s *Service) IndexStory(record StoryRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.IndexStory(record); err != nil {
			log.Printf("search: index story %s: %v", record.ID, err)
		}
	}()
}

// DeleteStory removes a story from the search index (fire-and-forget).
func (s *Service) DeleteStory(id string) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.DeleteStory(id); err != nil {
			log.Printf("search: delete story %s: %v", id, err)
		}
	}()
}

// ReindexAll reads every story from PG and pushes it to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.primary == nil || !s.primary.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.primary.IndexStories(records); err != nil {
		log.Printf("search: reindex stories: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
