package reducer

import "storyeditor/api/internal/story"

// SetBackground makes an element of the current page its background. The
// element swaps places with whatever occupies index 0, so the element count
// and id multiset stay the same. A previous background element loses its
// status. The background cannot stay part of a multi-selection.
func SetBackground(s story.Story, elementID string) story.Story {
	page, idx, ok := s.CurrentPage()
	if !ok {
		return s
	}
	at := page.ElementIndex(elementID)
	if at < 0 || page.IsBackground(elementID) {
		return s
	}

	elements := append([]story.Element(nil), page.Elements...)
	elements[0], elements[at] = elements[at], elements[0]
	page.Elements = elements
	page.BackgroundElementID = elementID
	page = page.WithBackgroundFlags()

	s = withPage(s, idx, page)
	if len(s.Selection) > 1 && s.IsSelected(elementID) {
		s.Selection = pruneSelection(s.Selection, idSet([]string{elementID}))
	}
	return s
}

// ClearBackground drops the current page's background reference. The
// former background element keeps its position.
func ClearBackground(s story.Story) story.Story {
	page, idx, ok := s.CurrentPage()
	if !ok || !page.HasBackground() {
		return s
	}
	page.BackgroundElementID = ""
	page = page.WithBackgroundFlags()
	return withPage(s, idx, page)
}
