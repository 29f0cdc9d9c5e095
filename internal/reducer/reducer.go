// Package reducer implements the operations that edit a story.
//
// Every operation is a pure function of the previous story and its
// arguments. An operation whose preconditions do not hold returns the story
// it was given, unchanged; that is a rejection, not an error. Inputs are
// never mutated: changed pages and element lists are copied, untouched ones
// are shared with the previous snapshot.
package reducer

import "storyeditor/api/internal/story"

// withPage returns s with the page at idx replaced.
func withPage(s story.Story, idx int, page story.Page) story.Story {
	pages := append([]story.Page(nil), s.Pages...)
	pages[idx] = page
	s.Pages = pages
	return s
}

func removeElements(elements []story.Element, drop map[string]struct{}) []story.Element {
	out := make([]story.Element, 0, len(elements))
	for _, element := range elements {
		if _, ok := drop[element.ID]; ok {
			continue
		}
		out = append(out, element)
	}
	return out
}

// moveElement relocates the element at from to index to, shifting the
// elements in between.
func moveElement(elements []story.Element, from, to int) []story.Element {
	out := make([]story.Element, 0, len(elements))
	moving := elements[from]
	for i, element := range elements {
		if i == from {
			continue
		}
		if len(out) == to {
			out = append(out, moving)
		}
		out = append(out, element)
	}
	if len(out) == to {
		out = append(out, moving)
	}
	return out
}

func pruneSelection(selection []string, drop map[string]struct{}) []string {
	var out []string
	for _, id := range selection {
		if _, ok := drop[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
