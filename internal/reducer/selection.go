package reducer

import "storyeditor/api/internal/story"

// SetSelection selects elements of the current page. Unknown and repeated
// ids are dropped; the first id is the primary selection. The background
// element can only be selected on its own.
func SetSelection(s story.Story, elementIDs []string) story.Story {
	page, _, ok := s.CurrentPage()
	if !ok {
		return s
	}
	selection := filterSelection(page, elementIDs)
	if sameIDs(selection, s.Selection) {
		return s
	}
	s.Selection = selection
	return s
}

// ToggleElementInSelection adds or removes one element. Toggling the
// background element in replaces the whole selection with it.
func ToggleElementInSelection(s story.Story, elementID string) story.Story {
	page, _, ok := s.CurrentPage()
	if !ok || page.ElementIndex(elementID) < 0 {
		return s
	}
	var next []string
	switch {
	case s.IsSelected(elementID):
		next = pruneSelection(s.Selection, idSet([]string{elementID}))
	case page.IsBackground(elementID):
		next = []string{elementID}
	default:
		next = append(append([]string(nil), s.Selection...), elementID)
	}
	return SetSelection(s, next)
}

func ClearSelection(s story.Story) story.Story {
	if len(s.Selection) == 0 {
		return s
	}
	s.Selection = nil
	return s
}

func filterSelection(page story.Page, ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		if page.ElementIndex(id) < 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > 1 && page.HasBackground() {
		out = pruneSelection(out, idSet([]string{page.BackgroundElementID}))
	}
	return out
}
