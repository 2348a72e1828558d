package perspective

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/frame"
	"github.com/fpang/baby-monitor/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeVision answers Analyze from a function and ignores Summarize.
type fakeVision struct {
	calls   atomic.Int32
	analyze func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeVision) Analyze(ctx context.Context, prompt string, _ []byte, _ string) (string, error) {
	f.calls.Add(1)
	return f.analyze(ctx, prompt)
}

func (f *fakeVision) Summarize(context.Context, string, *genai.Schema) (string, error) {
	return "", errors.New("not implemented")
}

func testFrame(w, h int) *frame.Frame {
	return frame.New(image.NewRGBA(image.Rect(0, 0, w, h)), time.Now())
}

func newTestAnalyzer(svc *fakeVision, cfg Config) (*Analyzer, *int) {
	a := NewAnalyzer(svc, cfg)
	sleeps := 0
	a.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}
	return a, &sleeps
}

func TestTimeoutOnEveryAttempt(t *testing.T) {
	svc := &fakeVision{analyze: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	a, sleeps := newTestAnalyzer(svc, Config{
		MaxRetry: 3,
		Timeout:  5 * time.Millisecond,
		Branches: []Branch{{Name: "branch1", Tasks: []Task{{Perspective: "safety", Prompt: "p"}}}},
	})

	got := a.Analyze(context.Background(), testFrame(200, 200))
	if got == nil || len(got.Analyses) != 1 {
		t.Fatalf("expected one result, got %+v", got)
	}
	r := got.Analyses[0]
	if r.Status != StatusUnknown || r.Posture != PostureUnknown || r.Action != ActionUnknown {
		t.Errorf("result = %+v, want all unknown", r)
	}
	if r.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", r.Confidence)
	}
	if r.Perspective != "safety" || r.Branch != "branch1" {
		t.Errorf("result not tagged: %+v", r)
	}
	if n := svc.calls.Load(); n != 4 {
		t.Errorf("calls = %d, want 4", n)
	}
	if *sleeps != 3 {
		t.Errorf("sleeps = %d, want 3", *sleeps)
	}
}

func TestHangingWorkerIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := &fakeVision{analyze: func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	}}
	a, _ := newTestAnalyzer(svc, Config{
		MaxRetry: 0,
		Timeout:  5 * time.Millisecond,
		Branches: []Branch{{Name: "b", Tasks: []Task{{Perspective: "p", Prompt: "p"}}}},
	})

	done := make(chan *Aggregated, 1)
	go func() { done <- a.Analyze(context.Background(), testFrame(120, 120)) }()
	select {
	case got := <-done:
		if got.Analyses[0].Status != StatusUnknown {
			t.Errorf("status = %q, want unknown", got.Analyses[0].Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Analyze blocked on a hung worker")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	var n atomic.Int32
	svc := &fakeVision{analyze: func(context.Context, string) (string, error) {
		switch n.Add(1) {
		case 1:
			return "", errors.New("boom")
		case 2:
			return "", nil
		default:
			return "The baby is prone and still. Danger.", nil
		}
	}}
	a, sleeps := newTestAnalyzer(svc, Config{
		MaxRetry: 3,
		Timeout:  time.Second,
		Branches: []Branch{{Name: "b", Tasks: []Task{{Perspective: "safety", Prompt: "p"}}}},
	})

	got := a.Analyze(context.Background(), testFrame(100, 100))
	r := got.Analyses[0]
	if r.Status != StatusDanger || r.Posture != PostureProne || r.Action != ActionIdle {
		t.Errorf("result = %+v", r)
	}
	if svc.calls.Load() != 3 || *sleeps != 2 {
		t.Errorf("calls = %d sleeps = %d, want 3 and 2", svc.calls.Load(), *sleeps)
	}
}

func TestPanickingServiceIsRetried(t *testing.T) {
	svc := &fakeVision{analyze: func(context.Context, string) (string, error) {
		panic("client exploded")
	}}
	a, _ := newTestAnalyzer(svc, Config{
		MaxRetry: 1,
		Timeout:  time.Second,
		Branches: []Branch{{Name: "b", Tasks: []Task{{Perspective: "p", Prompt: "p"}}}},
	})
	got := a.Analyze(context.Background(), testFrame(100, 100))
	if got.Analyses[0].Status != StatusUnknown || svc.calls.Load() != 2 {
		t.Errorf("got %+v after %d calls", got.Analyses[0], svc.calls.Load())
	}
}

func TestInvalidFrames(t *testing.T) {
	svc := &fakeVision{analyze: func(context.Context, string) (string, error) { return "safe", nil }}
	a, _ := newTestAnalyzer(svc, DefaultConfig())

	for _, f := range []*frame.Frame{nil, testFrame(99, 200), testFrame(200, 99)} {
		if got := a.Analyze(context.Background(), f); got != nil {
			t.Errorf("expected nil for invalid frame, got %+v", got)
		}
	}
	if svc.calls.Load() != 0 {
		t.Error("service must not be called for invalid frames")
	}
}

func TestDefaultBranchesOrderAndTags(t *testing.T) {
	var mu sync.Mutex
	var prompts []string
	svc := &fakeVision{analyze: func(_ context.Context, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return "baby is supine, moving, safe", nil
	}}

	for _, concurrent := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.Concurrent = concurrent
		a, _ := newTestAnalyzer(svc, cfg)

		got := a.Analyze(context.Background(), testFrame(2048, 1536))
		want := []struct{ branch, perspective string }{
			{"branch1", "emotion_behavior"},
			{"branch1", "safety"},
			{"branch2", "environment_event"},
			{"branch2", "safety"},
		}
		if len(got.Analyses) != len(want) {
			t.Fatalf("concurrent=%v: got %d results, want %d", concurrent, len(got.Analyses), len(want))
		}
		for i, w := range want {
			r := got.Analyses[i]
			if r.Branch != w.branch || r.Perspective != w.perspective {
				t.Errorf("concurrent=%v result %d = %s/%s, want %s/%s",
					concurrent, i, r.Branch, r.Perspective, w.branch, w.perspective)
			}
			if r.Status != StatusNormal || r.Confidence != 0.9 {
				t.Errorf("concurrent=%v result %d = %+v", concurrent, i, r)
			}
		}
	}
	if len(prompts) != 8 {
		t.Errorf("expected 8 prompts, got %d", len(prompts))
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	svc := &fakeVision{analyze: func(context.Context, string) (string, error) {
		return "", errors.New("down")
	}}
	a := NewAnalyzer(svc, Config{
		MaxRetry:  5,
		RetryWait: time.Hour,
		Timeout:   time.Second,
		Branches:  []Branch{{Name: "b", Tasks: []Task{{Perspective: "p", Prompt: "p"}}}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := a.Analyze(ctx, testFrame(100, 100))
	if got.Analyses[0].Status != StatusUnknown {
		t.Errorf("status = %q, want unknown", got.Analyses[0].Status)
	}
	if svc.calls.Load() > 1 {
		t.Errorf("calls = %d, want at most 1 with a cancelled context", svc.calls.Load())
	}
}
