// Package media stores the images behind story elements and produces
// cropped copies of them.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"path"
	"strings"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"storyeditor/api/internal/geometry"
	"storyeditor/api/internal/story"
)

const MaxUploadBytes = 20 << 20

var (
	ErrNotFound         = errors.New("media object not found")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("media exceeds upload limit")
	ErrEmptyCrop        = errors.New("crop leaves no pixels")
)

// ObjectStore is the blob backend media objects are kept in.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	URL(key string) string
}

type Service struct {
	objects ObjectStore
	prefix  string
}

func NewService(objects ObjectStore) *Service {
	return &Service{objects: objects, prefix: "media"}
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Upload stores an image and describes it as a resource. The mime type is
// taken from the decoded data, not from the caller.
func (s *Service) Upload(ctx context.Context, name string, body io.Reader) (story.Resource, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return story.Resource{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return story.Resource{}, ErrTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return story.Resource{}, fmt.Errorf("%w: %v", ErrUnsupportedMedia, err)
	}
	mimeType := "image/" + format
	return s.store(ctx, data, mimeType, cfg.Width, cfg.Height, altText(name))
}

// Crop cuts params' rectangle out of resource and stores the result as a new
// resource. The original object is left in place.
func (s *Service) Crop(ctx context.Context, resource story.Resource, params geometry.CropParams) (story.Resource, error) {
	if resource.Key == "" {
		return story.Resource{}, fmt.Errorf("%w: resource has no storage key", ErrNotFound)
	}
	data, err := s.objects.Get(ctx, resource.Key)
	if err != nil {
		return story.Resource{}, err
	}
	cropped, mimeType, err := cropImage(data, resource.Width, params)
	if err != nil {
		return story.Resource{}, err
	}
	bounds, _, err := image.DecodeConfig(bytes.NewReader(cropped))
	if err != nil {
		return story.Resource{}, fmt.Errorf("read cropped image: %w", err)
	}
	return s.store(ctx, cropped, mimeType, bounds.Width, bounds.Height, resource.Alt)
}

func (s *Service) store(ctx context.Context, data []byte, mimeType string, width, height int, alt string) (story.Resource, error) {
	ext, ok := extensions[mimeType]
	if !ok {
		return story.Resource{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
	id := uuid.NewString()
	key := path.Join(s.prefix, id+ext)
	if err := s.objects.Put(ctx, key, data, mimeType); err != nil {
		return story.Resource{}, err
	}
	kind := "image"
	if mimeType == "image/gif" {
		kind = "gif"
	}
	return story.Resource{
		ID:       id,
		Type:     kind,
		Src:      s.objects.URL(key),
		Key:      key,
		MimeType: mimeType,
		Width:    float64(width),
		Height:   float64(height),
		Alt:      alt,
	}, nil
}

// cropImage decodes data, cuts the crop rectangle and re-encodes it in the
// source format. WebP has no encoder and is written as PNG. Crop values are in resource pixels; when the stored image
// has a different width than the resource claims, they are rescaled.
func cropImage(data []byte, resourceWidth float64, params geometry.CropParams) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedMedia, err)
	}
	b := img.Bounds()
	scale := 1.0
	if resourceWidth > 0 && float64(b.Dx()) != resourceWidth {
		scale = float64(b.Dx()) / resourceWidth
	}
	rect := image.Rect(
		b.Min.X+int(math.Floor(params.CropX*scale)),
		b.Min.Y+int(math.Floor(params.CropY*scale)),
		b.Min.X+int(math.Floor((params.CropX+params.CropWidth)*scale)),
		b.Min.Y+int(math.Floor((params.CropY+params.CropHeight)*scale)),
	).Intersect(b)
	if rect.Empty() {
		return nil, "", ErrEmptyCrop
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Copy(cropped, image.Point{}, img, rect, xdraw.Src, nil)

	var out bytes.Buffer
	switch format {
	case "webp":
		format = "png"
		err = png.Encode(&out, cropped)
	case "png":
		err = png.Encode(&out, cropped)
	case "jpeg":
		err = jpeg.Encode(&out, cropped, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&out, cropped, nil)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode cropped %s: %w", format, err)
	}
	return out.Bytes(), "image/" + format, nil
}

func altText(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
