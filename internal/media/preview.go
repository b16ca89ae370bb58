package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// PreviewSize is the longest side of generated previews, in pixels.
const PreviewSize = 512

// Preview renders a JPEG thumbnail that fits in a maxSide square.
// Images already smaller than maxSide are re-encoded without upscaling.
func Preview(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode original: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxSide || bounds.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
