package story

import (
	"encoding/json"
	"fmt"
)

var (
	elementKeys = keySet("id", "type", "x", "y", "width", "height", "rotationAngle", "isBackground",
		"groupId", "opacity", "flip", "resource", "content", "scale", "focalX", "focalY", "productId", "isLocked")
	pageKeys  = keySet("id", "elements", "backgroundElementId", "backgroundOverlay", "advancement", "pageAttachment")
	storyKeys = keySet("version", "title", "pages", "defaults", "current", "selection")
)

type elementAlias Element

type elementJSON struct {
	elementAlias
	GroupID *string `json:"groupId"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	out := elementJSON{elementAlias: elementAlias(e), GroupID: nullable(e.GroupID)}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, e.Extra)
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var in elementJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode element: %w", err)
	}
	extra, err := splitExtra(data, elementKeys)
	if err != nil {
		return fmt.Errorf("decode element: %w", err)
	}
	*e = Element(in.elementAlias)
	e.GroupID = deref(in.GroupID)
	e.Extra = extra
	return nil
}

type pageAlias Page

type pageJSON struct {
	pageAlias
	BackgroundElementID *string `json:"backgroundElementId"`
	BackgroundOverlay   *string `json:"backgroundOverlay"`
}

func (p Page) MarshalJSON() ([]byte, error) {
	out := pageJSON{
		pageAlias:           pageAlias(p),
		BackgroundElementID: nullable(p.BackgroundElementID),
		BackgroundOverlay:   nullable(string(p.BackgroundOverlay)),
	}
	if out.Elements == nil {
		out.Elements = []Element{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, p.Extra)
}

func (p *Page) UnmarshalJSON(data []byte) error {
	var in pageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	extra, err := splitExtra(data, pageKeys)
	if err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	*p = Page(in.pageAlias)
	p.BackgroundElementID = deref(in.BackgroundElementID)
	p.BackgroundOverlay = Overlay(deref(in.BackgroundOverlay))
	p.Extra = extra
	return nil
}

type storyAlias Story

func (s Story) MarshalJSON() ([]byte, error) {
	out := storyAlias(s)
	if out.Pages == nil {
		out.Pages = []Page{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, s.Extra)
}

func (s *Story) UnmarshalJSON(data []byte) error {
	var in storyAlias
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode story: %w", err)
	}
	extra, err := splitExtra(data, storyKeys)
	if err != nil {
		return fmt.Errorf("decode story: %w", err)
	}
	*s = Story(in)
	s.Extra = extra
	return nil
}

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

// mergeExtra adds extra keys to an encoded object. Modelled fields win.
func mergeExtra(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	return json.Marshal(fields)
}

func splitExtra(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for key, value := range fields {
		if _, ok := known[key]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key] = value
	}
	return extra, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
