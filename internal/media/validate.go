// Package media inspects uploaded food photos before they are submitted for enhancement.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	_ "golang.org/x/image/webp"
)

// Limits bounds what the submission pipeline accepts.
type Limits struct {
	MaxBytes     int64
	MinDimension int
}

// DefaultLimits matches the upload widget: 10 MB and at least 256px on each side.
func DefaultLimits() Limits {
	return Limits{MaxBytes: 10 << 20, MinDimension: 256}
}

// Info describes a decoded image header.
type Info struct {
	Format      string
	ContentType string
	Width       int
	Height      int
	Size        int64
}

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// Validate decodes the image header and checks it against limits.
// Every rejection wraps domain.ErrInvalidImage.
func Validate(data []byte, limits Limits) (Info, error) {
	size := int64(len(data))
	if size == 0 {
		return Info{}, fmt.Errorf("%w: empty file", domain.ErrInvalidImage)
	}
	if limits.MaxBytes > 0 && size > limits.MaxBytes {
		return Info{}, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", domain.ErrInvalidImage, size, limits.MaxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return Info{}, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidImage, format)
	}
	if cfg.Width < limits.MinDimension || cfg.Height < limits.MinDimension {
		return Info{}, fmt.Errorf("%w: %dx%d is below the %dpx minimum",
			domain.ErrInvalidImage, cfg.Width, cfg.Height, limits.MinDimension)
	}

	return Info{
		Format:      format,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        size,
	}, nil
}

// Extension returns the file extension for a decoded format, including the dot.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png":
		return ".png"
	case "webp":
		return ".webp"
	default:
		return ".bin"
	}
}
