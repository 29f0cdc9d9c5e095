package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("story not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListStories(ctx context.Context) ([]StorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, version, updated_by, updated_at
		FROM stories
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]StorySummary, 0)
	for rows.Next() {
		var item StorySummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Version, &item.UpdatedBy, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetStory(ctx context.Context, storyID string) (StoryRecord, error) {
	var item StoryRecord
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, version, data, body_text, updated_by, created_at, updated_at
		FROM stories
		WHERE id=$1
	`, storyID).Scan(&item.ID, &item.Title, &item.Version, &data, &item.BodyText, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoryRecord{}, ErrNotFound
	}
	if err != nil {
		return StoryRecord{}, fmt.Errorf("get story: %w", err)
	}
	item.Data = data
	return item, nil
}

func (s *PostgresStore) InsertStory(ctx context.Context, item StoryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, title, version, data, body_text, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Title, item.Version, []byte(item.Data), item.BodyText, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

// UpdateStory replaces the stored document. Stories are rewritten whole on
// every save; there is no partial update.
func (s *PostgresStore) UpdateStory(ctx context.Context, item StoryRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stories
		SET title=$2, version=$3, data=$4, body_text=$5, updated_by=$6, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Version, []byte(item.Data), item.BodyText, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteStory(ctx context.Context, storyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id=$1`, storyID)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
