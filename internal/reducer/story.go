package reducer

import "storyeditor/api/internal/story"

type StoryPatch struct {
	Title    *string         `json:"title,omitempty"`
	Defaults *story.Defaults `json:"defaults,omitempty"`
}

func UpdateStory(s story.Story, patch StoryPatch) story.Story {
	if patch.Title == nil && patch.Defaults == nil {
		return s
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Defaults != nil {
		s.Defaults = *patch.Defaults
	}
	return s
}
