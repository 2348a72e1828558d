package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// gaussian5 is the 5-tap binomial kernel [1 4 6 4 1]/16, the fixed kernel a
// 5x5 Gaussian with automatic sigma resolves to.
var gaussian5 = [5]int{1, 4, 6, 4, 1}

// Grayscale converts an image to 8-bit luma with origin (0,0).
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// GaussianBlur applies a separable 5x5 Gaussian to a grayscale image.
// Borders replicate the edge pixel. The input is not modified.
func GaussianBlur(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(b)
	}

	// Horizontal pass keeps the sum scaled by 16 to avoid rounding twice.
	tmp := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += gaussian5[k+2] * int(row[clamp(x+k, w)])
			}
			tmp[y*w+x] = sum
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += gaussian5[k+2] * tmp[clamp(y+k, h)*w+x]
			}
			// 16*16 = 256; add half for rounding.
			dst.Pix[y*dst.Stride+x] = uint8((sum + 128) >> 8)
		}
	}
	return dst
}

// Smooth is the grayscale + blur pipeline used before frame differencing.
func Smooth(img image.Image) *image.Gray {
	return GaussianBlur(Grayscale(img))
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
