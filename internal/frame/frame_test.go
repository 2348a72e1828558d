package frame

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func solidGray(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"within bounds", 640, 480, 1024, 640, 480},
		{"landscape", 2048, 1024, 1024, 1024, 512},
		{"portrait", 1000, 3000, 1500, 500, 1500},
		{"square", 2000, 2000, 1000, 1000, 1000},
		{"disabled", 4000, 3000, 0, 4000, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitDimensions(tt.w, tt.h, tt.max)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitDimensions(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := Resize(src, 100)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Errorf("Resize bounds = %v, want 100x50", out.Bounds())
	}

	small := image.NewRGBA(image.Rect(0, 0, 50, 50))
	if Resize(small, 100) != image.Image(small) {
		t.Error("Resize should return images within bounds unchanged")
	}
}

func TestEncodeDecodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	data, err := EncodeJPEG(img, 0)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f, err := Decode(data, now)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Width() != 32 || f.Height() != 16 {
		t.Errorf("decoded size = %dx%d, want 32x16", f.Width(), f.Height())
	}
	if !f.CapturedAt().Equal(now) {
		t.Errorf("CapturedAt = %v, want %v", f.CapturedAt(), now)
	}

	if _, err := Decode([]byte("not an image"), now); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestGaussianBlurUniform(t *testing.T) {
	blurred := GaussianBlur(solidGray(10, 10, 77))
	for i, v := range blurred.Pix {
		if v != 77 {
			t.Fatalf("pixel %d = %d, want 77 for uniform input", i, v)
		}
	}
}

func TestGaussianBlurSpreadsImpulse(t *testing.T) {
	src := solidGray(9, 9, 0)
	src.SetGray(4, 4, color.Gray{Y: 255})
	blurred := GaussianBlur(src)

	center := blurred.GrayAt(4, 4).Y
	neighbour := blurred.GrayAt(5, 4).Y
	far := blurred.GrayAt(0, 0).Y
	if center == 0 || neighbour == 0 {
		t.Errorf("impulse should spread: center=%d neighbour=%d", center, neighbour)
	}
	if center <= neighbour {
		t.Errorf("center %d should exceed neighbour %d", center, neighbour)
	}
	if far != 0 {
		t.Errorf("pixel outside kernel radius = %d, want 0", far)
	}
	if src.GrayAt(5, 4).Y != 0 {
		t.Error("GaussianBlur must not modify its input")
	}
}

func TestGrayscaleOffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 20, 30))
	g := Grayscale(img)
	if g.Bounds() != image.Rect(0, 0, 10, 20) {
		t.Errorf("Grayscale bounds = %v, want origin-based 10x20", g.Bounds())
	}
}
