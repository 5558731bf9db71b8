// Package imaging shrinks downloaded originals that exceed the destination's
// photo upload limits: dimensions are clamped first, then JPEG quality is
// stepped down until the encoded size fits the budget.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

const (
	// Destination limits for grouped photo uploads.
	maxUploadBytes = 10 * 1024 * 1024
	maxWidth       = 2560
	maxEdgeSum     = 10000

	qualityStart = 100
	qualityFloor = 10
	qualityStep  = 5
)

// WithinSizeLimit reports whether the file at path fits the photo upload
// budget as-is.
func WithinSizeLimit(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size() <= maxUploadBytes, nil
}

// Compress re-encodes the image at src into dst as a JPEG no larger than
// targetMB. Dimensions are clamped (width <= 2560, width+height <= 10000,
// never upscaled), then quality steps down from 100 to a floor of 10. At
// the floor the result is written even if it still exceeds the budget.
func Compress(src, dst string, targetMB int) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", src, err)
	}

	bounds := img.Bounds()
	if w := clampedWidth(bounds.Dx(), bounds.Dy()); w < bounds.Dx() {
		img = resize.Resize(uint(w), 0, img, resize.Lanczos3)
	}

	budget := int64(targetMB) * 1024 * 1024
	var buf bytes.Buffer
	for quality := qualityStart; ; quality -= qualityStep {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encoding %s: %w", src, err)
		}
		if int64(buf.Len()) <= budget || quality <= qualityFloor {
			break
		}
	}

	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

// clampedWidth returns the largest width satisfying both dimension limits
// at the image's aspect ratio.
func clampedWidth(w, h int) int {
	out := w
	if out > maxWidth {
		out = maxWidth
	}
	if sum := w + h; sum > maxEdgeSum {
		scaled := w * maxEdgeSum / sum
		if scaled < out {
			out = scaled
		}
	}
	return out
}
