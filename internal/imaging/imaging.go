// Package imaging normalizes arbitrary uploaded images into the single form
// the OCR engine consumes: a single-channel grayscale PNG. No resizing,
// rotation correction, or contrast enhancement is applied.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUndecodable reports input bytes that no registered image format accepts.
// Structurally malformed input cannot self-correct, so callers must not retry.
var ErrUndecodable = errors.New("imaging: undecodable image data")

// NormalizedImage is a grayscale image encoded as PNG, ready for OCR.
type NormalizedImage struct {
	PNG    []byte
	Width  int
	Height int
}

// Normalize decodes the given image bytes and converts them to grayscale.
// Accepted formats are PNG, JPEG and GIF plus BMP, TIFF and WebP via the
// x/image decoders registered above. Normalize is idempotent on its own
// output: normalizing a NormalizedImage's PNG again yields equal pixels.
func Normalize(data []byte) (*NormalizedImage, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode grayscale png: %w", err)
	}
	return &NormalizedImage{PNG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
