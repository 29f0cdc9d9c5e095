package reducer

import (
	"encoding/json"
	"fmt"

	"storyeditor/api/internal/story"
)

// Step is a relative layer move.
type Step string

const (
	StepBackward Step = "backward"
	StepForward  Step = "forward"
	StepToBack   Step = "back"
	StepToFront  Step = "front"
)

// Position is either a relative Step or an absolute element index.
type Position struct {
	Step  Step
	Index int
}

func AbsolutePosition(index int) Position {
	return Position{Index: index}
}

func (p Position) MarshalJSON() ([]byte, error) {
	if p.Step != "" {
		return json.Marshal(string(p.Step))
	}
	return json.Marshal(p.Index)
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var step string
	if err := json.Unmarshal(data, &step); err == nil {
		switch Step(step) {
		case StepBackward, StepForward, StepToBack, StepToFront:
			*p = Position{Step: Step(step)}
			return nil
		}
		return fmt.Errorf("unknown arrange step %q", step)
	}
	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("arrange position must be a step or an index")
	}
	*p = Position{Index: index}
	return nil
}

// ArrangeElement changes the z-order of one element on the current page.
// An empty elementID means the selected element, and only works when
// exactly one element is selected.
//
// Index 0 is reserved for the background: the background element never
// moves and nothing is moved into or out of the bottom slot, so the
// reachable range is [1, len-1]. A single backward or forward step skips
// grouped elements and lands on the nearest ungrouped slot, falling back to
// the end of the range. Back and front jump straight to the range ends.
func ArrangeElement(s story.Story, elementID string, position Position) story.Story {
	page, pageIdx, ok := s.CurrentPage()
	if !ok {
		return s
	}
	if elementID == "" {
		if len(s.Selection) != 1 {
			return s
		}
		elementID = s.Selection[0]
	}
	idx := page.ElementIndex(elementID)
	if idx <= 0 || page.IsBackground(elementID) {
		return s
	}
	lowest, highest := 1, len(page.Elements)-1
	if highest <= lowest {
		return s
	}

	target := idx
	switch position.Step {
	case StepBackward:
		if idx <= lowest {
			return s
		}
		target = lowest
		for j := idx - 1; j >= lowest; j-- {
			if page.Elements[j].GroupID == "" {
				target = j
				break
			}
		}
	case StepForward:
		if idx >= highest {
			return s
		}
		target = highest
		for j := idx + 1; j <= highest; j++ {
			if page.Elements[j].GroupID == "" {
				target = j
				break
			}
		}
	case StepToBack:
		target = lowest
	case StepToFront:
		target = highest
	default:
		target = clamp(position.Index, lowest, highest)
	}
	if target == idx {
		return s
	}

	page.Elements = moveElement(page.Elements, idx, target)
	return withPage(s, pageIdx, page)
}
