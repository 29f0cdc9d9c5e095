package reducer

import (
	"encoding/json"
	"errors"
	"fmt"

	"storyeditor/api/internal/story"
)

// ActionType names one of the operations Reduce can dispatch.
type ActionType string

const (
	ActionAddPage                  ActionType = "ADD_PAGE"
	ActionDeletePage               ActionType = "DELETE_PAGE"
	ActionArrangePage              ActionType = "ARRANGE_PAGE"
	ActionSetCurrentPage           ActionType = "SET_CURRENT_PAGE"
	ActionUpdatePage               ActionType = "UPDATE_PAGE"
	ActionSetSelection             ActionType = "SET_SELECTED_ELEMENTS"
	ActionToggleElementInSelection ActionType = "TOGGLE_ELEMENT_IN_SELECTION"
	ActionClearSelection           ActionType = "CLEAR_SELECTION"
	ActionAddElements              ActionType = "ADD_ELEMENTS"
	ActionDeleteElementByID        ActionType = "DELETE_ELEMENT_BY_ID"
	ActionDeleteElementsByID       ActionType = "DELETE_ELEMENTS_BY_ID"
	ActionDeleteSelectedElements   ActionType = "DELETE_SELECTED_ELEMENTS"
	ActionUpdateElementByID        ActionType = "UPDATE_ELEMENT_BY_ID"
	ActionUpdateElementsByID       ActionType = "UPDATE_ELEMENTS_BY_ID"
	ActionUpdateSelectedElements   ActionType = "UPDATE_SELECTED_ELEMENTS"
	ActionDuplicateElementsByID    ActionType = "DUPLICATE_ELEMENTS_BY_ID"
	ActionArrangeElement           ActionType = "ARRANGE_ELEMENT"
	ActionSetBackground            ActionType = "SET_BACKGROUND_ELEMENT"
	ActionClearBackground          ActionType = "CLEAR_BACKGROUND_ELEMENT"
	ActionUpdateStory              ActionType = "UPDATE_STORY"
)

var ErrUnknownAction = errors.New("unknown action")

// Action is the serialized form of one operation call.
type Action struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AddPagePayload struct {
	Page story.Page `json:"page"`
}

type PageIDPayload struct {
	PageID string `json:"pageId"`
}

type ArrangePagePayload struct {
	PageID   string `json:"pageId"`
	Position int    `json:"position"`
}

type UpdatePagePayload struct {
	PageID     string    `json:"pageId"`
	Properties PagePatch `json:"properties"`
}

type ElementIDPayload struct {
	ElementID string `json:"elementId"`
}

type ElementIDsPayload struct {
	ElementIDs []string `json:"elementIds"`
}

type AddElementsPayload struct {
	Elements []story.Element `json:"elements"`
}

type UpdateElementPayload struct {
	ElementID  string       `json:"elementId"`
	Properties ElementPatch `json:"properties"`
}

type UpdateElementsPayload struct {
	ElementIDs []string     `json:"elementIds"`
	Properties ElementPatch `json:"properties"`
}

type DuplicateElementsPayload struct {
	ElementIDs []string `json:"elementIds"`
	NewIDs     []string `json:"newIds"`
}

type ArrangeElementPayload struct {
	ElementID string   `json:"elementId,omitempty"`
	Position  Position `json:"position"`
}

type UpdateStoryPayload struct {
	Properties StoryPatch `json:"properties"`
}

// NewAction encodes payload for an action of type t.
func NewAction(t ActionType, payload any) (Action, error) {
	if payload == nil {
		return Action{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Action{Type: t, Payload: data}, nil
}

// Reduce applies one action. Errors only describe actions that cannot be
// decoded; a decoded action whose preconditions fail returns s unchanged.
func Reduce(s story.Story, action Action) (story.Story, error) {
	switch action.Type {
	case ActionAddPage:
		var p AddPagePayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return AddPage(s, p.Page), nil
	case ActionDeletePage:
		var p PageIDPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return DeletePage(s, p.PageID), nil
	case ActionArrangePage:
		var p ArrangePagePayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return ArrangePage(s, p.PageID, p.Position), nil
	case ActionSetCurrentPage:
		var p PageIDPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return SetCurrentPage(s, p.PageID), nil
	case ActionUpdatePage:
		var p UpdatePagePayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return UpdatePage(s, p.PageID, p.Properties), nil
	case ActionSetSelection:
		var p ElementIDsPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return SetSelection(s, p.ElementIDs), nil
	case ActionToggleElementInSelection:
		var p ElementIDPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return ToggleElementInSelection(s, p.ElementID), nil
	case ActionClearSelection:
		return ClearSelection(s), nil
	case ActionAddElements:
		var p AddElementsPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return AddElements(s, p.Elements), nil
	case ActionDeleteElementByID:
		var p ElementIDPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return DeleteElementByID(s, p.ElementID), nil
	case ActionDeleteElementsByID:
		var p ElementIDsPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return DeleteElementsByID(s, p.ElementIDs), nil
	case ActionDeleteSelectedElements:
		return DeleteSelectedElements(s), nil
	case ActionUpdateElementByID:
		var p UpdateElementPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return UpdateElementByID(s, p.ElementID, p.Properties), nil
	case ActionUpdateElementsByID:
		var p UpdateElementsPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return UpdateElementsByID(s, p.ElementIDs, p.Properties), nil
	case ActionUpdateSelectedElements:
		var p UpdateElementPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return UpdateSelectedElements(s, p.Properties), nil
	case ActionDuplicateElementsByID:
		var p DuplicateElementsPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return DuplicateElementsByID(s, p.ElementIDs, p.NewIDs), nil
	case ActionArrangeElement:
		var p ArrangeElementPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return ArrangeElement(s, p.ElementID, p.Position), nil
	case ActionSetBackground:
		var p ElementIDPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return SetBackground(s, p.ElementID), nil
	case ActionClearBackground:
		return ClearBackground(s), nil
	case ActionUpdateStory:
		var p UpdateStoryPayload
		if err := decode(action, &p); err != nil {
			return s, err
		}
		return UpdateStory(s, p.Properties), nil
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
}

// Replay folds actions over s in order. Replaying the same actions against
// the same story always yields the same result. On error the story reached
// before the failing action is returned.
func Replay(s story.Story, actions []Action) (story.Story, error) {
	for i, action := range actions {
		next, err := Reduce(s, action)
		if err != nil {
			return s, fmt.Errorf("action %d: %w", i, err)
		}
		s = next
	}
	return s, nil
}

func decode(action Action, target any) error {
	if len(action.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", action.Type)
	}
	if err := json.Unmarshal(action.Payload, target); err != nil {
		return fmt.Errorf("%s: decode payload: %w", action.Type, err)
	}
	return nil
}
