package migrate

import (
	"fmt"
	"path"
	"strings"
)

// Default returns the registry of every schema change a stored story has
// gone through. Version 11 was withdrawn and has no transformation.
func Default() *Registry {
	return NewRegistry().
		Register(1, setOpacityDefault).
		Register(2, setFlipDefault).
		Register(3, fullbleedToBackground).
		Register(4, backgroundElementFromFlag).
		Register(5, paddingToObject).
		Register(6, rotationToRotationAngle).
		Register(7, backgroundOverlayToPage).
		Register(8, resourceMimeType).
		Register(9, emptyGroupIDToNull).
		Register(10, storyDefaults).
		Register(12, pageAdvancementObject)
}

// CurrentVersion is the schema version new documents are written with.
var CurrentVersion = Default().Current()

func setOpacityDefault(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		if _, ok := el["opacity"]; !ok {
			el["opacity"] = float64(100)
		}
		return nil
	})
}

func setFlipDefault(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		if _, ok := el["flip"]; !ok {
			el["flip"] = map[string]any{"horizontal": false, "vertical": false}
		}
		return nil
	})
}

func fullbleedToBackground(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		value, ok := el["isFullbleed"]
		if !ok {
			return nil
		}
		delete(el, "isFullbleed")
		if _, exists := el["isBackground"]; !exists {
			el["isBackground"] = value == true
		}
		return nil
	})
}

func backgroundElementFromFlag(doc Document) (Document, error) {
	return doc, eachPage(doc, func(page Document) error {
		elements, err := elementsOf(page)
		if err != nil {
			return err
		}
		found := -1
		for i, el := range elements {
			flagged := el["isBackground"] == true
			if flagged && found < 0 {
				found = i
				continue
			}
			if flagged {
				el["isBackground"] = false
			}
		}
		if found < 0 {
			if _, ok := page["backgroundElementId"]; !ok {
				page["backgroundElementId"] = nil
			}
			return nil
		}
		bg := elements[found]
		page["backgroundElementId"] = bg["id"]
		if found > 0 {
			raw := page["elements"].([]any)
			reordered := make([]any, 0, len(raw))
			reordered = append(reordered, raw[found])
			reordered = append(reordered, raw[:found]...)
			reordered = append(reordered, raw[found+1:]...)
			page["elements"] = reordered
		}
		return nil
	})
}

func paddingToObject(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		if el["type"] != "text" {
			return nil
		}
		value, ok := el["padding"].(float64)
		if !ok {
			return nil
		}
		el["padding"] = map[string]any{"horizontal": value, "vertical": value, "locked": true}
		return nil
	})
}

func rotationToRotationAngle(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		value, ok := el["rotation"]
		delete(el, "rotation")
		if _, exists := el["rotationAngle"]; exists {
			return nil
		}
		if angle, isNumber := value.(float64); ok && isNumber {
			el["rotationAngle"] = angle
			return nil
		}
		el["rotationAngle"] = float64(0)
		return nil
	})
}

func backgroundOverlayToPage(doc Document) (Document, error) {
	return doc, eachPage(doc, func(page Document) error {
		elements, err := elementsOf(page)
		if err != nil {
			return err
		}
		overlay, hasOverlay := page["backgroundOverlay"]
		for _, el := range elements {
			value, ok := el["backgroundOverlay"]
			if !ok {
				continue
			}
			delete(el, "backgroundOverlay")
			if el["isBackground"] == true && !hasOverlay {
				overlay, hasOverlay = value, true
			}
		}
		if !hasOverlay || overlay == nil {
			overlay = "none"
		}
		page["backgroundOverlay"] = overlay
		return nil
	})
}

var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func resourceMimeType(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		resource, ok := el["resource"].(map[string]any)
		if !ok {
			return nil
		}
		mimeType, _ := resource["mimeType"].(string)
		if mimeType == "" {
			src, _ := resource["src"].(string)
			mimeType = mimeFromSource(src)
			if mimeType == "" {
				return nil
			}
			resource["mimeType"] = mimeType
		}
		if kind, _ := resource["type"].(string); kind == "" {
			switch {
			case mimeType == "image/gif":
				resource["type"] = "gif"
			case strings.HasPrefix(mimeType, "image/"):
				resource["type"] = "image"
			case strings.HasPrefix(mimeType, "video/"):
				resource["type"] = "video"
			}
		}
		return nil
	})
}

func mimeFromSource(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return mimeByExtension[strings.ToLower(path.Ext(src))]
}

func emptyGroupIDToNull(doc Document) (Document, error) {
	return doc, eachElement(doc, func(_ Document, el Document) error {
		if id, ok := el["groupId"].(string); ok && strings.TrimSpace(id) == "" {
			delete(el, "groupId")
		}
		return nil
	})
}

func storyDefaults(doc Document) (Document, error) {
	defaults, ok := doc["defaults"].(map[string]any)
	if !ok {
		if value, present := doc["defaults"]; present && value != nil {
			return nil, fmt.Errorf("defaults: expected object, got %T", value)
		}
		defaults = map[string]any{}
	}
	if _, ok := defaults["autoAdvance"]; !ok {
		defaults["autoAdvance"] = true
	}
	if _, ok := defaults["pageDuration"]; !ok {
		defaults["pageDuration"] = float64(7)
	}
	if _, ok := defaults["backgroundOverlay"]; !ok {
		defaults["backgroundOverlay"] = "none"
	}
	doc["defaults"] = defaults
	return doc, nil
}

func pageAdvancementObject(doc Document) (Document, error) {
	return doc, eachPage(doc, func(page Document) error {
		autoAdvance, hasAuto := page["autoAdvance"]
		duration, hasDuration := page["pageDuration"]
		delete(page, "autoAdvance")
		delete(page, "pageDuration")
		if hasAuto || hasDuration {
			advancement, ok := page["advancement"].(map[string]any)
			if !ok {
				advancement = map[string]any{}
			}
			if _, exists := advancement["autoAdvance"]; hasAuto && !exists {
				advancement["autoAdvance"] = autoAdvance
			}
			if _, exists := advancement["pageDuration"]; hasDuration && !exists {
				advancement["pageDuration"] = duration
			}
			page["advancement"] = advancement
		}
		if attachment, ok := page["pageAttachment"].(map[string]any); ok {
			if text, _ := attachment["ctaText"].(string); text == "" {
				attachment["ctaText"] = "Learn more"
			}
		}
		return nil
	})
}

func eachPage(doc Document, fn func(Document) error) error {
	value, ok := doc["pages"]
	if !ok || value == nil {
		return nil
	}
	pages, ok := value.([]any)
	if !ok {
		return fmt.Errorf("pages: expected array, got %T", value)
	}
	for i, raw := range pages {
		page, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("pages[%d]: expected object, got %T", i, raw)
		}
		if err := fn(page); err != nil {
			return fmt.Errorf("pages[%d]: %w", i, err)
		}
	}
	return nil
}

func elementsOf(page Document) ([]Document, error) {
	value, ok := page["elements"]
	if !ok || value == nil {
		return nil, nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("elements: expected array, got %T", value)
	}
	elements := make([]Document, len(raw))
	for i, item := range raw {
		el, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("elements[%d]: expected object, got %T", i, item)
		}
		elements[i] = el
	}
	return elements, nil
}

func eachElement(doc Document, fn func(page, el Document) error) error {
	return eachPage(doc, func(page Document) error {
		elements, err := elementsOf(page)
		if err != nil {
			return err
		}
		for _, el := range elements {
			if err := fn(page, el); err != nil {
				return err
			}
		}
		return nil
	})
}
