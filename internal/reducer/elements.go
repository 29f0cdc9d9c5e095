package reducer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"storyeditor/api/internal/story"
)

// DuplicateOffset is how far a duplicated element is nudged from its source.
const DuplicateOffset = 30

// ElementPatch lists element properties to overwrite. Nil fields are left
// alone. An element's id, type and background status are not patchable;
// the background is changed through SetBackground and ClearBackground only.
type ElementPatch struct {
	X             *float64        `json:"x,omitempty"`
	Y             *float64        `json:"y,omitempty"`
	Width         *float64        `json:"width,omitempty"`
	Height        *float64        `json:"height,omitempty"`
	RotationAngle *float64        `json:"rotationAngle,omitempty"`
	GroupID       *string         `json:"groupId,omitempty"`
	Opacity       *float64        `json:"opacity,omitempty"`
	Flip          *story.Flip     `json:"flip,omitempty"`
	Resource      *story.Resource `json:"resource,omitempty"`
	Content       *string         `json:"content,omitempty"`
	Scale         *float64        `json:"scale,omitempty"`
	FocalX        *float64        `json:"focalX,omitempty"`
	FocalY        *float64        `json:"focalY,omitempty"`
	ProductID     *string         `json:"productId,omitempty"`
	IsLocked      *bool           `json:"isLocked,omitempty"`

	// Extra sets type-specific properties the model does not name. A JSON
	// null removes the property.
	Extra map[string]json.RawMessage `json:"-"`
}

var patchKeys = map[string]struct{}{
	"x": {}, "y": {}, "width": {}, "height": {}, "rotationAngle": {}, "groupId": {}, "opacity": {},
	"flip": {}, "resource": {}, "content": {}, "scale": {}, "focalX": {}, "focalY": {}, "productId": {},
	"isLocked": {},
	// never patchable
	"id": {}, "type": {}, "isBackground": {},
}

type patchAlias ElementPatch

// UnmarshalJSON reads a patch; "groupId": null ungroups the element.
func (p *ElementPatch) UnmarshalJSON(data []byte) error {
	var in patchAlias
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode element patch: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode element patch: %w", err)
	}
	*p = ElementPatch(in)
	if raw, ok := fields["groupId"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		empty := ""
		p.GroupID = &empty
	}
	for key, value := range fields {
		if _, known := patchKeys[key]; known {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[key] = value
	}
	return nil
}

func (p ElementPatch) apply(element story.Element) story.Element {
	setFloat(&element.X, p.X)
	setFloat(&element.Y, p.Y)
	setFloat(&element.Width, p.Width)
	setFloat(&element.Height, p.Height)
	setFloat(&element.RotationAngle, p.RotationAngle)
	if p.GroupID != nil {
		element.GroupID = *p.GroupID
	}
	if p.Opacity != nil {
		element.Opacity = floatPtr(*p.Opacity)
	}
	if p.Flip != nil {
		flip := *p.Flip
		element.Flip = &flip
	}
	if p.Resource != nil {
		resource := *p.Resource
		element.Resource = &resource
	}
	if p.Content != nil {
		element.Content = *p.Content
	}
	if p.Scale != nil {
		element.Scale = floatPtr(*p.Scale)
	}
	if p.FocalX != nil {
		element.FocalX = floatPtr(*p.FocalX)
	}
	if p.FocalY != nil {
		element.FocalY = floatPtr(*p.FocalY)
	}
	if p.ProductID != nil {
		element.ProductID = *p.ProductID
	}
	if p.IsLocked != nil {
		element.IsLocked = *p.IsLocked
	}
	if len(p.Extra) > 0 {
		extra := make(map[string]json.RawMessage, len(element.Extra)+len(p.Extra))
		for key, value := range element.Extra {
			extra[key] = value
		}
		for key, value := range p.Extra {
			if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				delete(extra, key)
				continue
			}
			extra[key] = value
		}
		if len(extra) == 0 {
			extra = nil
		}
		element.Extra = extra
	}
	return element
}

func setFloat(dst *float64, value *float64) {
	if value != nil {
		*dst = *value
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// AddElements puts new elements on top of the current page and selects
// them. Elements with an empty or already used id reject the whole batch.
func AddElements(s story.Story, elements []story.Element) story.Story {
	page, idx, ok := s.CurrentPage()
	if !ok || len(elements) == 0 {
		return s
	}
	added := make([]string, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for _, element := range elements {
		if element.ID == "" || page.ElementIndex(element.ID) >= 0 {
			return s
		}
		if _, dup := seen[element.ID]; dup {
			return s
		}
		seen[element.ID] = struct{}{}
		added = append(added, element.ID)
	}

	next := make([]story.Element, 0, len(page.Elements)+len(elements))
	next = append(next, page.Elements...)
	for _, element := range elements {
		element.IsBackground = false
		next = append(next, element)
	}
	page.Elements = next

	s = withPage(s, idx, page)
	s.Selection = added
	return s
}

// DeleteElementByID removes one element from the current page, drops it
// from the selection and, if it was the background, clears the page's
// background reference. Unknown ids leave the story unchanged, and so does
// deleting a page's only element: pages are never left empty, so the last
// element (normally the background) cannot be removed.
func DeleteElementByID(s story.Story, elementID string) story.Story {
	return DeleteElementsByID(s, []string{elementID})
}

// DeleteElementsByID removes every listed element present on the current
// page. A page keeps at least one element: a deletion that would empty it
// is rejected.
func DeleteElementsByID(s story.Story, elementIDs []string) story.Story {
	page, idx, ok := s.CurrentPage()
	if !ok {
		return s
	}
	drop := make(map[string]struct{}, len(elementIDs))
	for _, id := range elementIDs {
		if page.ElementIndex(id) >= 0 {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 || len(drop) == len(page.Elements) {
		return s
	}

	page.Elements = removeElements(page.Elements, drop)
	if _, removed := drop[page.BackgroundElementID]; removed {
		page.BackgroundElementID = ""
	}

	s = withPage(s, idx, page)
	s.Selection = pruneSelection(s.Selection, drop)
	return s
}

func DeleteSelectedElements(s story.Story) story.Story {
	return DeleteElementsByID(s, s.Selection)
}

func UpdateElementByID(s story.Story, elementID string, patch ElementPatch) story.Story {
	return UpdateElementsByID(s, []string{elementID}, patch)
}

// UpdateElementsByID applies the same patch to every listed element of the
// current page.
func UpdateElementsByID(s story.Story, elementIDs []string, patch ElementPatch) story.Story {
	page, idx, ok := s.CurrentPage()
	if !ok {
		return s
	}
	targets := idSet(elementIDs)
	var elements []story.Element
	for i, element := range page.Elements {
		if _, hit := targets[element.ID]; !hit {
			continue
		}
		if elements == nil {
			elements = append([]story.Element(nil), page.Elements...)
		}
		elements[i] = patch.apply(element)
	}
	if elements == nil {
		return s
	}
	page.Elements = elements
	return withPage(s, idx, page)
}

func UpdateSelectedElements(s story.Story, patch ElementPatch) story.Story {
	return UpdateElementsByID(s, s.Selection, patch)
}

// DuplicateElementsByID copies elements of the current page under the
// caller-chosen newIDs (parallel to elementIDs). Copies are ungrouped,
// nudged by DuplicateOffset, stacked on top and selected. The background
// element cannot be duplicated.
func DuplicateElementsByID(s story.Story, elementIDs, newIDs []string) story.Story {
	page, _, ok := s.CurrentPage()
	if !ok || len(elementIDs) == 0 || len(elementIDs) != len(newIDs) {
		return s
	}
	copies := make([]story.Element, 0, len(elementIDs))
	for i, id := range elementIDs {
		source, found := page.Element(id)
		if !found || page.IsBackground(id) {
			return s
		}
		source.ID = newIDs[i]
		source.GroupID = ""
		source.X += DuplicateOffset
		source.Y += DuplicateOffset
		copies = append(copies, source)
	}
	return AddElements(s, copies)
}
