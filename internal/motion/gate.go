// Package motion decides whether consecutive frames differ enough to be worth
// a full analysis.
package motion

import (
	"image"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/frame"
)

const (
	// DefaultThreshold is the default sum of binarized differences that counts as motion.
	DefaultThreshold = 5000

	// binarizeLevel is the minimum absolute intensity change for a pixel to count as changed.
	binarizeLevel = 30

	// illuminationRatio is the changed-pixel fraction above which a difference is
	// treated as a global lighting change rather than motion.
	illuminationRatio = 0.8
)

// Gate compares each frame with the previous one. It keeps exactly one
// smoothed grayscale snapshot and is not meant to be shared between streams.
type Gate struct {
	threshold int64

	mu       sync.Mutex
	previous *image.Gray
}

// NewGate returns a Gate that reports motion when the binarized difference
// sum exceeds threshold. A non-positive threshold selects DefaultThreshold.
func NewGate(threshold int) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{threshold: int64(threshold)}
}

// Threshold returns the configured difference threshold.
func (g *Gate) Threshold() int64 { return g.threshold }

// DetectMotion reports whether f differs meaningfully from the previously seen
// frame. The snapshot is always replaced by f, so the first call and the call
// after a resolution change return false.
func (g *Gate) DetectMotion(f *frame.Frame) bool {
	if f == nil {
		log.Warn().Msg("Motion detection skipped: no frame")
		return false
	}
	current := frame.Smooth(f.Image())

	g.mu.Lock()
	defer g.mu.Unlock()

	previous := g.previous
	g.previous = current

	if previous == nil {
		log.Debug().Int("width", f.Width()).Int("height", f.Height()).Msg("Motion baseline stored")
		return false
	}
	if previous.Bounds() != current.Bounds() {
		log.Warn().
			Str("previous", previous.Bounds().String()).
			Str("current", current.Bounds().String()).
			Msg("Frame size changed, motion baseline reset")
		return false
	}

	d := diff(previous, current)
	if d.ratio() > illuminationRatio {
		log.Debug().Float64("changeRatio", d.ratio()).Msg("Global change ignored as illumination shift")
		return false
	}
	moved := d.sum > g.threshold
	if moved {
		log.Debug().Int64("score", d.sum).Int64("threshold", g.threshold).Msg("Motion detected")
	}
	return moved
}

// Score returns the binarized difference sum between f and the stored
// snapshot without replacing it. It returns 0 when there is nothing to compare.
func (g *Gate) Score(f *frame.Frame) int64 {
	if f == nil {
		return 0
	}
	current := frame.Smooth(f.Image())

	g.mu.Lock()
	previous := g.previous
	g.mu.Unlock()

	if previous == nil || previous.Bounds() != current.Bounds() {
		return 0
	}
	return diff(previous, current).sum
}

// Reset discards the stored snapshot.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.previous = nil
	g.mu.Unlock()
}

type difference struct {
	changed int
	total   int
	sum     int64
}

func (d difference) ratio() float64 {
	if d.total == 0 {
		return 0
	}
	return float64(d.changed) / float64(d.total)
}

// diff binarizes the per-pixel absolute difference of two same-sized images.
func diff(a, b *image.Gray) difference {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	d := difference{total: w * h}
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := range ra {
			delta := int(ra[x]) - int(rb[x])
			if delta < 0 {
				delta = -delta
			}
			if delta > binarizeLevel {
				d.changed++
			}
		}
	}
	d.sum = int64(d.changed) * 255
	return d
}
