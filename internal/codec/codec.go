// Package codec converts stored story documents to and from the in-memory
// model. Every document read goes through the migration registry and the
// story schema before the editor sees it.
package codec

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"storyeditor/api/internal/migrate"
	"storyeditor/api/internal/story"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://storyeditor.local/schemas/story.schema.json"

var (
	ErrInvalidDocument = errors.New("invalid story document")
	ErrFutureVersion   = errors.New("story document is newer than this server")
)

type Codec struct {
	registry *migrate.Registry
	schema   *jsonschema.Schema
}

func New(registry *migrate.Registry) (*Codec, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("story schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("story schema compile failed: %w", err)
	}
	return &Codec{registry: registry, schema: schema}, nil
}

// Default uses the built-in migration registry.
func Default() (*Codec, error) {
	return New(migrate.Default())
}

func (c *Codec) CurrentVersion() int {
	return c.registry.Current()
}

// Decode parses a stored document at any known version and returns it
// migrated, validated and ready for editing.
func (c *Codec) Decode(data []byte) (story.Story, error) {
	s, _, err := c.DecodeVersion(data)
	return s, err
}

// DecodeVersion is Decode that also reports the version the document was
// stored with.
func (c *Codec) DecodeVersion(data []byte) (story.Story, int, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return story.Story{}, 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return story.Story{}, 0, fmt.Errorf("%w: expected a JSON object", ErrInvalidDocument)
	}
	from, err := storedVersion(doc)
	if err != nil {
		return story.Story{}, 0, err
	}
	if from > c.registry.Current() {
		return story.Story{}, from, fmt.Errorf("%w: version %d, current %d", ErrFutureVersion, from, c.registry.Current())
	}

	migrated, err := c.registry.Migrate(doc, from)
	if err != nil {
		return story.Story{}, from, err
	}
	// Re-encode so the schema sees plain JSON values.
	encoded, err := json.Marshal(migrated)
	if err != nil {
		return story.Story{}, from, fmt.Errorf("encode migrated story: %w", err)
	}
	var plain any
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return story.Story{}, from, fmt.Errorf("decode migrated story: %w", err)
	}
	if err := c.schema.Validate(plain); err != nil {
		return story.Story{}, from, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var s story.Story
	if err := json.Unmarshal(encoded, &s); err != nil {
		return story.Story{}, from, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return story.Story{}, from, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return s, from, nil
}

// Encode serializes the persistent part of s at the current version.
func (c *Codec) Encode(s story.Story) ([]byte, error) {
	out := s.Persisted()
	out.Version = c.registry.Current()
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode story: %w", err)
	}
	return data, nil
}

func storedVersion(doc map[string]any) (int, error) {
	value, ok := doc["version"]
	if !ok || value == nil {
		return 0, nil
	}
	number, ok := value.(float64)
	if !ok || number < 0 || number != math.Trunc(number) {
		return 0, fmt.Errorf("%w: version %v is not a non-negative integer", ErrInvalidDocument, value)
	}
	return int(number), nil
}
