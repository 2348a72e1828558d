// Package frame holds the image value that flows through one monitoring
// iteration, plus the pixel helpers the motion gate and the analyzer need:
// bounded resizing, JPEG encoding, grayscale conversion and Gaussian smoothing.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is used when a caller passes an out-of-range quality.
const DefaultJPEGQuality = 85

// Frame is an immutable camera image. Callers must not draw into Image().
type Frame struct {
	img        image.Image
	capturedAt time.Time
}

// New wraps a decoded image captured at the given time.
func New(img image.Image, capturedAt time.Time) *Frame {
	return &Frame{img: img, capturedAt: capturedAt}
}

// Decode parses a JPEG (or any registered format) buffer into a Frame.
func Decode(data []byte, capturedAt time.Time) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return New(img, capturedAt), nil
}

// Image returns the underlying image.
func (f *Frame) Image() image.Image { return f.img }

// CapturedAt returns the capture timestamp.
func (f *Frame) CapturedAt() time.Time { return f.capturedAt }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.img.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.img.Bounds().Dy() }

// EncodeJPEG encodes the frame at the given quality (1-100).
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	return EncodeJPEG(f.img, quality)
}

// EncodeJPEG encodes an image as JPEG. Out-of-range qualities fall back to
// DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales img so that neither side exceeds maxDimension, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
func Resize(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	w, h := FitDimensions(bounds.Dx(), bounds.Dy(), maxDimension)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// FitDimensions returns width/height scaled down so the longest side equals
// maxDimension. A non-positive maxDimension disables scaling.
func FitDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if width >= height {
		return maxDimension, max(1, int(float64(height)*float64(maxDimension)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxDimension)/float64(height))), maxDimension
}
