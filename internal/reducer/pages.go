package reducer

import "storyeditor/api/internal/story"

// PagePatch changes page-level settings. Nil fields are left alone.
type PagePatch struct {
	BackgroundOverlay *story.Overlay     `json:"backgroundOverlay,omitempty"`
	Advancement       *story.Advancement `json:"advancement,omitempty"`
	Attachment        *story.Attachment  `json:"pageAttachment,omitempty"`
}

// AddPage inserts page right after the current page and makes it current.
// Pages without elements, with a missing or duplicate id, or with
// duplicate element ids are rejected.
func AddPage(s story.Story, page story.Page) story.Story {
	if len(page.Elements) == 0 || page.ID == "" || s.PageIndex(page.ID) >= 0 {
		return s
	}
	seen := make(map[string]struct{}, len(page.Elements))
	for _, element := range page.Elements {
		if element.ID == "" {
			return s
		}
		if _, dup := seen[element.ID]; dup {
			return s
		}
		seen[element.ID] = struct{}{}
	}

	if page.BackgroundOverlay == "" {
		page.BackgroundOverlay = defaultOverlay(s)
	}
	page = page.NormalizeBackground()

	insertAt := s.PageIndex(s.Current) + 1
	pages := make([]story.Page, 0, len(s.Pages)+1)
	pages = append(pages, s.Pages[:insertAt]...)
	pages = append(pages, page)
	pages = append(pages, s.Pages[insertAt:]...)

	s.Pages = pages
	s.Current = page.ID
	s.Selection = nil
	return s
}

func defaultOverlay(s story.Story) story.Overlay {
	if s.Defaults.BackgroundOverlay != "" {
		return s.Defaults.BackgroundOverlay
	}
	return story.OverlayNone
}

// DeletePage removes a page. The last remaining page cannot be deleted.
// When the current page goes, the previous page (or the next one, for the
// first page) becomes current.
func DeletePage(s story.Story, pageID string) story.Story {
	idx := s.PageIndex(pageID)
	if idx < 0 || len(s.Pages) <= 1 {
		return s
	}
	pages := make([]story.Page, 0, len(s.Pages)-1)
	pages = append(pages, s.Pages[:idx]...)
	pages = append(pages, s.Pages[idx+1:]...)

	if s.Current == pageID {
		s.Current = pages[max(idx-1, 0)].ID
		s.Selection = nil
	}
	s.Pages = pages
	return s
}

// ArrangePage moves a page to position, clamped to the page list.
func ArrangePage(s story.Story, pageID string, position int) story.Story {
	idx := s.PageIndex(pageID)
	if idx < 0 {
		return s
	}
	target := clamp(position, 0, len(s.Pages)-1)
	if target == idx {
		return s
	}
	pages := make([]story.Page, 0, len(s.Pages))
	for i, page := range s.Pages {
		if i == idx {
			continue
		}
		pages = append(pages, page)
	}
	pages = append(pages[:target], append([]story.Page{s.Pages[idx]}, pages[target:]...)...)
	s.Pages = pages
	return s
}

// SetCurrentPage switches the active page and empties the selection.
func SetCurrentPage(s story.Story, pageID string) story.Story {
	if s.PageIndex(pageID) < 0 || s.Current == pageID {
		return s
	}
	s.Current = pageID
	s.Selection = nil
	return s
}

func UpdatePage(s story.Story, pageID string, patch PagePatch) story.Story {
	idx := s.PageIndex(pageID)
	if idx < 0 {
		return s
	}
	page := s.Pages[idx]
	if patch.BackgroundOverlay != nil {
		page.BackgroundOverlay = *patch.BackgroundOverlay
	}
	if patch.Advancement != nil {
		advancement := *patch.Advancement
		page.Advancement = &advancement
	}
	if patch.Attachment != nil {
		if patch.Attachment.URL == "" {
			page.Attachment = nil
		} else {
			attachment := *patch.Attachment
			page.Attachment = &attachment
		}
	}
	return withPage(s, idx, page)
}
