// Package story holds the in-memory document model of a story: an ordered
// list of pages, each owning an ordered list of positioned elements.
package story

import "encoding/json"

// ElementType discriminates the element kinds a page can hold.
type ElementType string

const (
	ElementText    ElementType = "text"
	ElementImage   ElementType = "image"
	ElementVideo   ElementType = "video"
	ElementGif     ElementType = "gif"
	ElementShape   ElementType = "shape"
	ElementSticker ElementType = "sticker"
	ElementProduct ElementType = "product"
)

// IsMedia reports whether elements of this type carry a resource.
func (t ElementType) IsMedia() bool {
	switch t {
	case ElementImage, ElementVideo, ElementGif:
		return true
	default:
		return false
	}
}

// Overlay is the visual overlay drawn above a page background.
// The zero value means no overlay has been chosen (null).
type Overlay string

const (
	OverlayNone   Overlay = "none"
	OverlaySolid  Overlay = "solid"
	OverlayLinear Overlay = "linear"
	OverlayRadial Overlay = "radial"
)

type Flip struct {
	Horizontal bool `json:"horizontal"`
	Vertical   bool `json:"vertical"`
}

// Resource describes the media behind an image, gif or video element.
type Resource struct {
	ID       string  `json:"id,omitempty"`
	Type     string  `json:"type,omitempty"`
	Src      string  `json:"src"`
	Key      string  `json:"key,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Alt      string  `json:"alt,omitempty"`
	Length   float64 `json:"length,omitempty"`
}

// Element is a positioned item on a page. Fields not modelled here are kept
// in Extra so that stored documents survive a load/save cycle untouched.
type Element struct {
	ID            string      `json:"id"`
	Type          ElementType `json:"type"`
	X             float64     `json:"x"`
	Y             float64     `json:"y"`
	Width         float64     `json:"width"`
	Height        float64     `json:"height"`
	RotationAngle float64     `json:"rotationAngle"`
	IsBackground  bool        `json:"isBackground"`
	GroupID       string      `json:"-"`
	Opacity       *float64    `json:"opacity,omitempty"`
	Flip          *Flip       `json:"flip,omitempty"`
	Resource      *Resource   `json:"resource,omitempty"`
	Content       string      `json:"content,omitempty"`
	Scale         *float64    `json:"scale,omitempty"`
	FocalX        *float64    `json:"focalX,omitempty"`
	FocalY        *float64    `json:"focalY,omitempty"`
	ProductID     string      `json:"productId,omitempty"`
	IsLocked      bool        `json:"isLocked,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Advancement overrides the story-level auto-advance defaults for one page.
type Advancement struct {
	AutoAdvance  *bool    `json:"autoAdvance,omitempty"`
	PageDuration *float64 `json:"pageDuration,omitempty"`
}

// Attachment is the outlink shown at the bottom of a page.
type Attachment struct {
	URL     string `json:"url"`
	CTAText string `json:"ctaText,omitempty"`
}

// Page owns its elements. Element order is z-order: index 0 is the bottom
// and is the only slot a background element may occupy.
type Page struct {
	ID                  string       `json:"id"`
	Elements            []Element    `json:"elements"`
	BackgroundElementID string       `json:"-"`
	BackgroundOverlay   Overlay      `json:"-"`
	Advancement         *Advancement `json:"advancement,omitempty"`
	Attachment          *Attachment  `json:"pageAttachment,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Defaults are story-level settings applied to pages that do not override them.
type Defaults struct {
	AutoAdvance       bool    `json:"autoAdvance"`
	PageDuration      float64 `json:"pageDuration"`
	BackgroundOverlay Overlay `json:"backgroundOverlay,omitempty"`
}

// Story is the root aggregate. Current and Selection are editor state and
// are not part of the persisted document (see Persisted).
type Story struct {
	Version   int      `json:"version"`
	Title     string   `json:"title,omitempty"`
	Pages     []Page   `json:"pages"`
	Defaults  Defaults `json:"defaults"`
	Current   string   `json:"current,omitempty"`
	Selection []string `json:"selection,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// PageIndex returns the index of the page with the given id, or -1.
func (s Story) PageIndex(id string) int {
	for i, page := range s.Pages {
		if page.ID == id {
			return i
		}
	}
	return -1
}

// CurrentPage returns the active page and its index.
func (s Story) CurrentPage() (Page, int, bool) {
	idx := s.PageIndex(s.Current)
	if idx < 0 {
		return Page{}, -1, false
	}
	return s.Pages[idx], idx, true
}

// IsSelected reports whether the element id is part of the selection.
func (s Story) IsSelected(elementID string) bool {
	for _, id := range s.Selection {
		if id == elementID {
			return true
		}
	}
	return false
}

// Persisted returns the story without editor-only state.
func (s Story) Persisted() Story {
	s.Current = ""
	s.Selection = nil
	return s
}

// ElementIndex returns the index of the element with the given id, or -1.
func (p Page) ElementIndex(id string) int {
	for i, element := range p.Elements {
		if element.ID == id {
			return i
		}
	}
	return -1
}

func (p Page) Element(id string) (Element, bool) {
	idx := p.ElementIndex(id)
	if idx < 0 {
		return Element{}, false
	}
	return p.Elements[idx], true
}

// HasBackground reports whether the page designates a background element.
func (p Page) HasBackground() bool {
	return p.BackgroundElementID != ""
}

// IsBackground reports whether elementID is the page background.
func (p Page) IsBackground(elementID string) bool {
	return p.BackgroundElementID != "" && p.BackgroundElementID == elementID
}

// WithBackgroundFlags returns a copy of the page whose element isBackground
// flags mirror BackgroundElementID. Elements whose flag already agrees are
// shared, not copied.
func (p Page) WithBackgroundFlags() Page {
	var elements []Element
	for i, element := range p.Elements {
		want := p.IsBackground(element.ID)
		if element.IsBackground == want {
			continue
		}
		if elements == nil {
			elements = append([]Element(nil), p.Elements...)
		}
		elements[i].IsBackground = want
	}
	if elements != nil {
		p.Elements = elements
	}
	return p
}
