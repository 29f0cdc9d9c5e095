package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"storyeditor/api/internal/story"
)

func TestIsOffCanvas(t *testing.T) {
	dz := DangerZoneHeight
	tests := []struct {
		name string
		box  Box
		want OffCanvas
	}{
		{
			name: "inside",
			box:  Box{X: 0, Y: 0, Width: 320, Height: 240},
			want: OffCanvas{},
		},
		{
			name: "left",
			box:  Box{X: -50, Y: 0, Width: 320, Height: 240},
			want: OffCanvas{OffCanvas: true, Left: 50},
		},
		{
			name: "right",
			box:  Box{X: 200, Y: 0, Width: 320, Height: 240},
			want: OffCanvas{OffCanvas: true, Right: 108},
		},
		{
			name: "left and right",
			box:  Box{X: -10, Y: 0, Width: 500, Height: 240},
			want: OffCanvas{OffCanvas: true, Left: 10, Right: 78},
		},
		{
			name: "inside danger zone is on canvas",
			box:  Box{X: 0, Y: -dz, Width: 100, Height: 100},
			want: OffCanvas{},
		},
		{
			name: "top",
			box:  Box{X: 0, Y: -dz - 30, Width: 100, Height: 100},
			want: OffCanvas{OffCanvas: true, Top: 30},
		},
		{
			name: "bottom",
			box:  Box{X: 0, Y: PageHeight + dz - 60, Width: 100, Height: 100},
			want: OffCanvas{OffCanvas: true, Bottom: 40},
		},
		{
			name: "top and bottom",
			box:  Box{X: 0, Y: -dz - 10, Width: 100, Height: PageHeight + 2*dz + 30},
			want: OffCanvas{OffCanvas: true, Top: 10, Bottom: 20},
		},
		{
			name: "NaN clamps to zero",
			box:  Box{X: math.NaN(), Y: 0, Width: 100, Height: 100},
			want: OffCanvas{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsOffCanvas(tc.box)
			assert.Equal(t, tc.want.OffCanvas, got.OffCanvas)
			assert.InDelta(t, tc.want.Top, got.Top, 1e-9)
			assert.InDelta(t, tc.want.Right, got.Right, 1e-9)
			assert.InDelta(t, tc.want.Bottom, got.Bottom, 1e-9)
			assert.InDelta(t, tc.want.Left, got.Left, 1e-9)
		})
	}
}

func TestIsOffCanvasRotated(t *testing.T) {
	got := IsOffCanvas(Box{X: 0, Y: 100, Width: 100, Height: 100, RotationAngle: 45})
	half := 100 * math.Sqrt2 / 2
	assert.True(t, got.OffCanvas)
	assert.InDelta(t, half-50, got.Left, 1e-9)
	assert.Zero(t, got.Right)
}

func TestGetCropParams(t *testing.T) {
	element := story.Element{
		ID:       "img",
		Type:     story.ElementImage,
		X:        -20,
		Y:        0,
		Width:    320,
		Height:   240,
		Resource: &story.Resource{Src: "https://cdn.example/a.jpg", Width: 640, Height: 480},
	}
	got, ok := GetCropParams(element)
	if !ok {
		t.Fatal("expected crop params for media element")
	}
	assert.Equal(t, CropParams{
		CropX:      40,
		CropY:      0,
		CropWidth:  600,
		CropHeight: 480,
		NewX:       0,
		NewY:       0,
		NewWidth:   300,
		NewHeight:  240,
	}, got)
}

func TestGetCropParamsFloorsFractions(t *testing.T) {
	element := story.Element{
		X:        -10.3,
		Y:        0,
		Width:    250,
		Height:   200,
		Resource: &story.Resource{Width: 1000, Height: 800},
	}
	got, ok := GetCropParams(element)
	if !ok {
		t.Fatal("expected crop params")
	}
	assert.Equal(t, float64(41), got.CropX)
	assert.Equal(t, float64(958), got.CropWidth)
	assert.InDelta(t, 239.7, got.NewWidth, 1e-9)
}

func TestGetCropParamsWithoutResource(t *testing.T) {
	if _, ok := GetCropParams(story.Element{Width: 100}); ok {
		t.Fatal("expected no crop params without resource")
	}
	if _, ok := GetCropParams(story.Element{Width: 100, Resource: &story.Resource{}}); ok {
		t.Fatal("expected no crop params for zero-width resource")
	}
}
