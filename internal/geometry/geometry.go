// Package geometry measures elements against the page canvas: how far an
// element hangs past each edge and which part of its source media is still
// visible on the canvas.
package geometry

import (
	"math"

	"storyeditor/api/internal/story"
)

const (
	PageWidth      = 412
	PageHeight     = 618
	FullbleedRatio = 9.0 / 16.0
)

// DangerZoneHeight is the strip above and below the page that is still
// painted on full-bleed displays.
var DangerZoneHeight = (PageWidth/FullbleedRatio - PageHeight) / 2

// Box is an element's frame in page-local coordinates.
type Box struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	RotationAngle float64 `json:"rotationAngle,omitempty"`
}

// Canvas holds the page geometry elements are measured against.
type Canvas struct {
	Width            float64
	Height           float64
	DangerZoneHeight float64
}

// DefaultCanvas is the editor's page.
var DefaultCanvas = Canvas{Width: PageWidth, Height: PageHeight, DangerZoneHeight: DangerZoneHeight}

// OffCanvas is the non-negative overhang past each canvas edge.
type OffCanvas struct {
	OffCanvas bool    `json:"offCanvas"`
	Top       float64 `json:"offCanvasTop"`
	Right     float64 `json:"offCanvasRight"`
	Bottom    float64 `json:"offCanvasBottom"`
	Left      float64 `json:"offCanvasLeft"`
}

// CropParams is a crop rectangle in source-resource pixels plus the frame
// the element occupies once its off-canvas part is trimmed.
type CropParams struct {
	CropX      float64 `json:"cropX"`
	CropY      float64 `json:"cropY"`
	CropWidth  float64 `json:"cropWidth"`
	CropHeight float64 `json:"cropHeight"`
	NewX       float64 `json:"newX"`
	NewY       float64 `json:"newY"`
	NewWidth   float64 `json:"newWidth"`
	NewHeight  float64 `json:"newHeight"`
}

// ElementBox returns the frame of an element.
func ElementBox(element story.Element) Box {
	return Box{
		X:             element.X,
		Y:             element.Y,
		Width:         element.Width,
		Height:        element.Height,
		RotationAngle: element.RotationAngle,
	}
}

func IsOffCanvas(box Box) OffCanvas {
	return DefaultCanvas.IsOffCanvas(box)
}

// IsOffCanvas measures the overhang of box. Rotated boxes are measured by
// their axis-aligned bounds. The vertical extent starts DangerZoneHeight
// above the page and ends the same distance below it.
func (c Canvas) IsOffCanvas(box Box) OffCanvas {
	box = box.bounds()
	fullHeight := c.Height + 2*c.DangerZoneHeight
	top := box.Y + c.DangerZoneHeight

	var result OffCanvas
	result.Left = nonNegative(-box.X)
	result.Top = nonNegative(-top)

	if box.X < 0 {
		result.Right = nonNegative(box.Width - result.Left - c.Width)
	} else {
		result.Right = nonNegative(box.X + box.Width - c.Width)
	}
	if top < 0 {
		result.Bottom = nonNegative(box.Height - result.Top - fullHeight)
	} else {
		result.Bottom = nonNegative(top + box.Height - fullHeight)
	}

	result.OffCanvas = result.Top > 0 || result.Right > 0 || result.Bottom > 0 || result.Left > 0
	return result
}

// GetCropParams derives the crop of a media element's resource. It reports
// false for elements without a usable resource.
func GetCropParams(element story.Element) (CropParams, bool) {
	return DefaultCanvas.GetCropParams(element)
}

func (c Canvas) GetCropParams(element story.Element) (CropParams, bool) {
	if element.Resource == nil || element.Resource.Width <= 0 || element.Width <= 0 {
		return CropParams{}, false
	}
	box := ElementBox(element)
	box.RotationAngle = 0
	return c.CropParams(box, element.Resource.Width), true
}

// CropParams maps the on-canvas part of box into the pixel space of a
// resource resourceWidth pixels wide, assuming uniform scaling.
func (c Canvas) CropParams(box Box, resourceWidth float64) CropParams {
	displayedWidthPercent := box.Width / resourceWidth
	multiplier := 100 / (displayedWidthPercent * 100)
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		multiplier = 0
	}

	off := c.IsOffCanvas(box)
	newWidth := nonNegative(box.Width - off.Left - off.Right)
	newHeight := nonNegative(box.Height - off.Top - off.Bottom)

	return CropParams{
		CropX:      floor(off.Left * multiplier),
		CropY:      floor(off.Top * multiplier),
		CropWidth:  floor(newWidth * multiplier),
		CropHeight: floor(newHeight * multiplier),
		NewX:       box.X + off.Left,
		NewY:       box.Y + off.Top,
		NewWidth:   newWidth,
		NewHeight:  newHeight,
	}
}

func (b Box) bounds() Box {
	if b.RotationAngle == 0 || math.IsNaN(b.RotationAngle) {
		return b
	}
	rad := b.RotationAngle * math.Pi / 180
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	width := b.Width*cos + b.Height*sin
	height := b.Width*sin + b.Height*cos
	cx, cy := b.X+b.Width/2, b.Y+b.Height/2
	return Box{X: cx - width/2, Y: cy - height/2, Width: width, Height: height}
}

// nonNegative clamps negative and NaN values to zero.
func nonNegative(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}

func floor(v float64) float64 {
	return nonNegative(math.Floor(v))
}
