package story

import (
	"errors"
	"fmt"
)

// Validate reports every structural invariant the story violates, joined
// into one error, or nil when the story is well formed.
func (s Story) Validate() error {
	var errs []error

	if len(s.Pages) > 0 && s.PageIndex(s.Current) < 0 {
		errs = append(errs, fmt.Errorf("current page %q does not exist", s.Current))
	}

	pageIDs := make(map[string]struct{}, len(s.Pages))
	for _, page := range s.Pages {
		if page.ID == "" {
			errs = append(errs, errors.New("page without id"))
		}
		if _, dup := pageIDs[page.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate page id %q", page.ID))
		}
		pageIDs[page.ID] = struct{}{}
		errs = append(errs, page.validate()...)
	}

	if len(s.Selection) > 0 {
		page, _, ok := s.CurrentPage()
		seen := make(map[string]struct{}, len(s.Selection))
		for _, id := range s.Selection {
			if _, dup := seen[id]; dup {
				errs = append(errs, fmt.Errorf("element %q selected twice", id))
			}
			seen[id] = struct{}{}
			if !ok || page.ElementIndex(id) < 0 {
				errs = append(errs, fmt.Errorf("selected element %q is not on the current page", id))
			}
		}
	}

	return errors.Join(errs...)
}

func (p Page) validate() []error {
	var errs []error
	if len(p.Elements) == 0 {
		errs = append(errs, fmt.Errorf("page %q has no elements", p.ID))
	}
	ids := make(map[string]struct{}, len(p.Elements))
	for _, element := range p.Elements {
		if element.ID == "" {
			errs = append(errs, fmt.Errorf("page %q has an element without id", p.ID))
		}
		if _, dup := ids[element.ID]; dup {
			errs = append(errs, fmt.Errorf("page %q has duplicate element id %q", p.ID, element.ID))
		}
		ids[element.ID] = struct{}{}
		if element.IsBackground != p.IsBackground(element.ID) {
			errs = append(errs, fmt.Errorf("page %q element %q background flag out of sync", p.ID, element.ID))
		}
	}
	if p.HasBackground() && (len(p.Elements) == 0 || p.Elements[0].ID != p.BackgroundElementID) {
		errs = append(errs, fmt.Errorf("page %q background %q is not the bottom element", p.ID, p.BackgroundElementID))
	}
	return errs
}

// Normalize prepares a freshly loaded story for editing: the first page
// becomes current, the selection is emptied and every page's background
// reference is reconciled with its element order.
func (s Story) Normalize() Story {
	s.Selection = nil
	if len(s.Pages) == 0 {
		s.Current = ""
		return s
	}
	if s.PageIndex(s.Current) < 0 {
		s.Current = s.Pages[0].ID
	}
	pages := make([]Page, len(s.Pages))
	for i, page := range s.Pages {
		pages[i] = page.NormalizeBackground()
	}
	s.Pages = pages
	return s
}

// NormalizeBackground moves the background element to the bottom slot, clears
// a reference to a missing element and syncs the isBackground flags.
func (p Page) NormalizeBackground() Page {
	if p.HasBackground() {
		idx := p.ElementIndex(p.BackgroundElementID)
		switch {
		case idx < 0:
			p.BackgroundElementID = ""
		case idx > 0:
			elements := append([]Element(nil), p.Elements...)
			elements[0], elements[idx] = elements[idx], elements[0]
			p.Elements = elements
		}
	}
	return p.WithBackgroundFlags()
}
