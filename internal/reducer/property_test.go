package reducer

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"storyeditor/api/internal/story"
)

func seedStory() story.Story {
	s := story.Story{
		Version: 12,
		Current: "p1",
		Pages: []story.Page{
			{ID: "p1", Elements: []story.Element{el("p1-bg"), el("p1-a"), grouped("p1-g1", "g"), grouped("p1-g2", "g"), el("p1-b")}},
			{ID: "p2", Elements: []story.Element{el("p2-a"), el("p2-b")}},
		},
	}
	return SetBackground(s, "p1-bg")
}

// step turns a random number into one operation against s, picking its
// arguments from what s currently contains so most operations take effect.
func step(s story.Story, n int) story.Story {
	page, _, _ := s.CurrentPage()
	pick := func(k int) string {
		if len(page.Elements) == 0 {
			return "missing"
		}
		if k%7 == 0 {
			return "missing"
		}
		return page.Elements[k%len(page.Elements)].ID
	}
	arg := n / 16
	fresh := fmt.Sprintf("n%d", n)

	switch n % 16 {
	case 0:
		return AddPage(s, story.Page{ID: "page-" + fresh, Elements: []story.Element{el(fresh)}})
	case 1:
		return AddPage(s, story.Page{ID: "page-" + fresh})
	case 2:
		if len(s.Pages) == 0 {
			return s
		}
		return DeletePage(s, s.Pages[arg%len(s.Pages)].ID)
	case 3:
		if len(s.Pages) == 0 {
			return s
		}
		return SetCurrentPage(s, s.Pages[arg%len(s.Pages)].ID)
	case 4:
		return SetSelection(s, []string{pick(arg), pick(arg + 1)})
	case 5:
		return ToggleElementInSelection(s, pick(arg))
	case 6:
		return DeleteElementByID(s, pick(arg))
	case 7:
		return DeleteSelectedElements(s)
	case 8:
		steps := []Step{StepBackward, StepForward, StepToBack, StepToFront}
		return ArrangeElement(s, pick(arg), Position{Step: steps[arg%len(steps)]})
	case 9:
		return ArrangeElement(s, "", AbsolutePosition(arg%6))
	case 10:
		return SetBackground(s, pick(arg))
	case 11:
		return ClearBackground(s)
	case 12:
		return AddElements(s, []story.Element{el(fresh), grouped(fresh+"-g", "g")})
	case 13:
		group := ""
		if arg%2 == 0 {
			group = "g"
		}
		return UpdateElementByID(s, pick(arg), ElementPatch{GroupID: &group})
	case 14:
		return DuplicateElementsByID(s, []string{pick(arg)}, []string{fresh + "-dup"})
	default:
		if len(s.Pages) == 0 {
			return s
		}
		return ArrangePage(s, s.Pages[arg%len(s.Pages)].ID, arg%4)
	}
}

func TestOperationsPreserveInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every reachable state satisfies the story invariants", prop.ForAll(
		func(ops []int) bool {
			s := seedStory()
			for _, n := range ops {
				s = step(s, n)
				if err := s.Validate(); err != nil {
					t.Logf("after op %d: %v", n, err)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<12)),
	))

	properties.Property("operations never mutate their input", prop.ForAll(
		func(ops []int) bool {
			s := seedStory()
			for _, n := range ops {
				before, err := s.Fingerprint()
				if err != nil {
					return false
				}
				next := step(s, n)
				after, err := s.Fingerprint()
				if err != nil || before != after {
					return false
				}
				s = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<12)),
	))

	properties.Property("replaying the same operations is deterministic", prop.ForAll(
		func(ops []int) bool {
			a, b := seedStory(), seedStory()
			for _, n := range ops {
				a = step(a, n)
			}
			for _, n := range ops {
				b = step(b, n)
			}
			fa, errA := a.Fingerprint()
			fb, errB := b.Fingerprint()
			return errA == nil && errB == nil && fa == fb
		},
		gen.SliceOf(gen.IntRange(0, 1<<12)),
	))

	properties.Property("arranging keeps the element multiset", prop.ForAll(
		func(ops []int, target int, stepIdx int) bool {
			s := seedStory()
			for _, n := range ops {
				s = step(s, n)
			}
			page, _, ok := s.CurrentPage()
			if !ok || len(page.Elements) == 0 {
				return true
			}
			steps := []Step{StepBackward, StepForward, StepToBack, StepToFront}
			id := page.Elements[target%len(page.Elements)].ID
			next := ArrangeElement(s, id, Position{Step: steps[stepIdx%len(steps)]})
			after, _, _ := next.CurrentPage()
			if len(after.Elements) != len(page.Elements) {
				return false
			}
			counts := map[string]int{}
			for _, e := range page.Elements {
				counts[e.ID]++
			}
			for _, e := range after.Elements {
				counts[e.ID]--
			}
			for _, c := range counts {
				if c != 0 {
					return false
				}
			}
			return after.Elements[0].ID == page.Elements[0].ID
		},
		gen.SliceOf(gen.IntRange(0, 1<<12)),
		gen.IntRange(0, 100),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
