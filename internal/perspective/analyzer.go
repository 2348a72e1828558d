// Package perspective runs a frame past several analysis perspectives and
// collects one result per perspective.
//
// Every task is retried with a per-call deadline. A task that never succeeds
// still yields a result (status unknown, confidence 0.5), so Analyze only
// returns nil for frames it refuses to analyze.
package perspective

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/assets"
	"github.com/fpang/baby-monitor/internal/frame"
	"github.com/fpang/baby-monitor/internal/metrics"
	"github.com/fpang/baby-monitor/internal/vision"
)

// MinFrameSize is the smallest accepted width and height in pixels.
const MinFrameSize = 100

// Config controls retries and image preprocessing.
type Config struct {
	// MaxRetry is the number of additional attempts after the first.
	MaxRetry int
	// RetryWait is the pause between attempts.
	RetryWait time.Duration
	// Timeout bounds each individual call.
	Timeout time.Duration
	// ImageMaxSize caps the longest side of the image sent to the service.
	ImageMaxSize int
	// ImageQuality is the JPEG quality used for the upload.
	ImageQuality int
	// Concurrent evaluates branches in parallel. Results keep branch order.
	Concurrent bool
	// Branches overrides DefaultBranches.
	Branches []Branch
}

// DefaultConfig returns the standard retry and image settings.
func DefaultConfig() Config {
	return Config{
		MaxRetry:     3,
		RetryWait:    time.Second,
		Timeout:      15 * time.Second,
		ImageMaxSize: 1024,
		ImageQuality: frame.DefaultJPEGQuality,
	}
}

// Analyzer fans a frame out to every configured task.
type Analyzer struct {
	svc   vision.Service
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAnalyzer returns an Analyzer that queries svc.
func NewAnalyzer(svc vision.Service, cfg Config) *Analyzer {
	if len(cfg.Branches) == 0 {
		cfg.Branches = DefaultBranches()
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Analyzer{svc: svc, cfg: cfg, sleep: sleepContext}
}

// Analyze evaluates f from every perspective. It returns nil when f is
// missing, smaller than MinFrameSize on either side, or cannot be encoded.
func (a *Analyzer) Analyze(ctx context.Context, f *frame.Frame) *Aggregated {
	if f == nil || f.Width() < MinFrameSize || f.Height() < MinFrameSize {
		log.Warn().Msg("Invalid frame, skipping analysis")
		return nil
	}

	img := frame.Resize(f.Image(), a.cfg.ImageMaxSize)
	jpeg, err := frame.EncodeJPEG(img, a.cfg.ImageQuality)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode frame for analysis")
		return nil
	}

	start := time.Now()
	perBranch := make([][]Result, len(a.cfg.Branches))
	if a.cfg.Concurrent {
		var wg sync.WaitGroup
		for i, b := range a.cfg.Branches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				perBranch[i] = a.runBranch(ctx, b, jpeg)
			}()
		}
		wg.Wait()
	} else {
		for i, b := range a.cfg.Branches {
			perBranch[i] = a.runBranch(ctx, b, jpeg)
		}
	}

	out := &Aggregated{Analyses: []Result{}}
	for _, results := range perBranch {
		out.Analyses = append(out.Analyses, results...)
	}

	log.Info().
		Int("branches", len(a.cfg.Branches)).
		Int("results", len(out.Analyses)).
		Bool("concurrent", a.cfg.Concurrent).
		Dur("duration", time.Since(start)).
		Msg("Frame analysis completed")
	return out
}

func (a *Analyzer) runBranch(ctx context.Context, b Branch, jpeg []byte) []Result {
	results := make([]Result, 0, len(b.Tasks))
	for _, task := range b.Tasks {
		results = append(results, a.callWithRetry(ctx, b.Name, task, jpeg))
	}
	return results
}

// callWithRetry makes up to MaxRetry+1 attempts and returns the first
// non-empty answer parsed and tagged with its perspective and branch.
func (a *Analyzer) callWithRetry(ctx context.Context, branch string, task Task, jpeg []byte) Result {
	attempts := a.cfg.MaxRetry + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := a.callOnce(ctx, task.Prompt, jpeg)
		if err == nil && text != "" {
			r := ParseResponse(text)
			r.Perspective = task.Perspective
			r.Branch = branch
			return r
		}

		log.Warn().Err(err).
			Str("perspective", task.Perspective).
			Str("branch", branch).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Msg("Perspective analysis attempt failed")

		if attempt == attempts {
			break
		}
		if err := a.sleep(ctx, a.cfg.RetryWait); err != nil {
			log.Warn().Err(err).Str("perspective", task.Perspective).Msg("Retry wait interrupted")
			break
		}
	}

	log.Error().
		Str("perspective", task.Perspective).
		Str("branch", branch).
		Msg("Max retries reached, using default result")
	metrics.Monitor().
		Dimension("Perspective", task.Perspective).
		Count("PerspectiveFallbacks").
		Flush()
	return unknownResult(branch, task)
}

type reply struct {
	text string
	err  error
}

// callOnce runs one service call under its own deadline. On expiry the
// worker is abandoned; its buffered channel lets it finish without blocking.
func (a *Analyzer) callOnce(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("vision call panicked: %v", r)}
			}
		}()
		text, err := a.svc.Analyze(callCtx, prompt, jpeg, assets.FrameMIMEType)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-callCtx.Done():
		return "", fmt.Errorf("%w after %s: %w", vision.ErrTimeout, a.cfg.Timeout, callCtx.Err())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
