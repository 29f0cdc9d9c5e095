package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyeditor/api/internal/migrate"
	"storyeditor/api/internal/story"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

const legacyStory = `{
	"title": "Launch",
	"pages": [
		{"id": "p1", "elements": [
			{"id": "t1", "type": "text", "x": 10, "y": 20, "width": 100, "height": 40, "content": "Hello"},
			{"id": "bg", "type": "image", "x": 0, "y": 0, "width": 412, "height": 618, "isFullbleed": true,
			 "resource": {"src": "https://cdn.example.com/bg.png", "width": 1080, "height": 1920}}
		]},
		{"id": "p2", "elements": [
			{"id": "s1", "type": "shape", "x": 0, "y": 0, "width": 10, "height": 10}
		]}
	]
}`

func TestDecodeMigratesLegacyDocument(t *testing.T) {
	c := newCodec(t)

	s, from, err := c.DecodeVersion([]byte(legacyStory))
	require.NoError(t, err)
	assert.Equal(t, 0, from)
	assert.Equal(t, migrate.CurrentVersion, s.Version)
	assert.Equal(t, "Launch", s.Title)
	assert.Equal(t, "p1", s.Current)
	assert.Empty(t, s.Selection)

	page := s.Pages[0]
	assert.Equal(t, "bg", page.BackgroundElementID)
	assert.Equal(t, "bg", page.Elements[0].ID)
	assert.True(t, page.Elements[0].IsBackground)
	assert.False(t, page.Elements[1].IsBackground)
	assert.Equal(t, story.OverlayNone, page.BackgroundOverlay)
	require.NotNil(t, page.Elements[1].Opacity)
	assert.Equal(t, float64(100), *page.Elements[1].Opacity)
	assert.Equal(t, "image/png", page.Elements[0].Resource.MimeType)

	assert.True(t, s.Defaults.AutoAdvance)
	assert.Equal(t, float64(7), s.Defaults.PageDuration)
	assert.NoError(t, s.Validate())
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	c := newCodec(t)

	s, err := c.Decode([]byte(legacyStory))
	require.NoError(t, err)
	s.Selection = []string{"t1"}

	data, err := c.Encode(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(migrate.CurrentVersion), raw["version"])
	assert.NotContains(t, raw, "current")
	assert.NotContains(t, raw, "selection")

	again, from, err := c.DecodeVersion(data)
	require.NoError(t, err)
	assert.Equal(t, migrate.CurrentVersion, from)

	want, err := s.Persisted().Normalize().Fingerprint()
	require.NoError(t, err)
	got, err := again.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	c := newCodec(t)

	_, err := c.Decode([]byte(`{"version": 99, "pages": []}`))
	assert.True(t, errors.Is(err, ErrFutureVersion), "err = %v", err)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	c := newCodec(t)

	cases := map[string]string{
		"not json":        `{`,
		"array":           `[]`,
		"bad version":     `{"version": "two", "pages": []}`,
		"fraction":        `{"version": 1.5, "pages": []}`,
		"unknown type":    `{"version": 12, "pages": [{"id": "p", "elements": [{"id": "e", "type": "hologram"}]}]}`,
		"empty page":      `{"version": 12, "pages": [{"id": "p", "elements": []}]}`,
		"duplicate pages": `{"version": 12, "pages": [{"id": "p", "elements": [{"id": "e", "type": "shape"}]}, {"id": "p", "elements": [{"id": "e", "type": "shape"}]}]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode([]byte(input))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestDecodeSurfacesMigrationErrors(t *testing.T) {
	c := newCodec(t)

	_, err := c.Decode([]byte(`{"pages": "broken"}`))
	var migrateErr *migrate.Error
	require.ErrorAs(t, err, &migrateErr)
	assert.Equal(t, 1, migrateErr.Version)
}

func TestDecodeRepairsMisplacedBackground(t *testing.T) {
	c := newCodec(t)

	s, err := c.Decode([]byte(`{"version": 12, "pages": [{"id": "p", "backgroundElementId": "b", "elements": [
		{"id": "a", "type": "shape"}, {"id": "b", "type": "shape", "isBackground": true}
	]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "b", s.Pages[0].Elements[0].ID)
	assert.True(t, s.Pages[0].Elements[0].IsBackground)
}
