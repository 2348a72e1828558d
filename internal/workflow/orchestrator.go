// Package workflow drives the monitoring pipeline: frame capture, motion
// gating, perspective analysis, risk scoring, notification, diary recording
// and the daily digest check.
//
// One goroutine runs the state machine. Each call to Step executes exactly
// one node and routes to the next through the transition table.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/alerts"
	"github.com/fpang/baby-monitor/internal/camera"
	"github.com/fpang/baby-monitor/internal/diary"
	"github.com/fpang/baby-monitor/internal/eventlog"
	"github.com/fpang/baby-monitor/internal/frame"
	"github.com/fpang/baby-monitor/internal/metrics"
	"github.com/fpang/baby-monitor/internal/perspective"
	"github.com/fpang/baby-monitor/internal/risk"
)

// DefaultErrorWait is the pause in the error node before the loop restarts.
const DefaultErrorWait = 5 * time.Second

// MotionDetector is the motion gate.
type MotionDetector interface {
	DetectMotion(f *frame.Frame) bool
}

// FrameAnalyzer runs the perspective analysis. A nil result is a failure.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, f *frame.Frame) *perspective.Aggregated
}

// Notifier delivers emergency notifications with its own retry policy.
type Notifier interface {
	Send(ctx context.Context, subject, message string, attachment []byte) bool
}

// Diary records iterations and sends the daily digest.
type Diary interface {
	RecordEvent(ctx context.Context, ev diary.EventData)
	ShouldSendDailyDigest() bool
	SendDailyDigest(ctx context.Context) bool
}

// EventLogger records pipeline events.
type EventLogger interface {
	LogEvent(ctx context.Context, ev eventlog.Event)
}

// DangerPublisher announces triggered notifications.
type DangerPublisher interface {
	PublishDanger(ctx context.Context, ev alerts.DangerDetected) error
}

// Deps are the collaborators of an Orchestrator. Publisher is optional.
type Deps struct {
	Camera    camera.Camera
	Motion    MotionDetector
	Analyzer  FrameAnalyzer
	Evaluator *risk.Evaluator
	Notifier  Notifier
	Diary     Diary
	Events    EventLogger
	Publisher DangerPublisher
}

// Config tunes the driver.
type Config struct {
	// ErrorWait is the pause in the error node.
	ErrorWait time.Duration
	// MaxSteps stops Run after that many steps. Zero runs until cancelled.
	MaxSteps int
	// ImageQuality is the JPEG quality of notification and diary images.
	ImageQuality int
}

// Orchestrator owns the camera and the per-iteration State.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	node  Node
	state State
	steps int
}

// New returns an Orchestrator positioned at get_frame.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.ErrorWait <= 0 {
		cfg.ErrorWait = DefaultErrorWait
	}
	if cfg.ImageQuality <= 0 {
		cfg.ImageQuality = frame.DefaultJPEGQuality
	}
	if deps.Evaluator == nil {
		deps.Evaluator = risk.NewEvaluator(risk.DefaultMinConfidence)
	}
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		sleep: sleepContext,
		now:   time.Now,
		node:  NodeGetFrame,
		state: State{Status: StatusMonitoring},
	}
}

// Node returns the node the next Step will execute.
func (o *Orchestrator) Node() Node { return o.node }

// State returns a copy of the current State.
func (o *Orchestrator) State() State { return o.state }

// Steps returns how many steps have run.
func (o *Orchestrator) Steps() int { return o.steps }

// Run steps the pipeline until ctx is cancelled or MaxSteps is reached.
// The camera is released on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.deps.Camera.Release()
	log.Info().Int("maxSteps", o.cfg.MaxSteps).Dur("errorWait", o.cfg.ErrorWait).Msg("Monitoring loop started")

	for {
		if err := ctx.Err(); err != nil {
			log.Info().Int("steps", o.steps).Msg("Monitoring loop stopped")
			return nil
		}
		if o.cfg.MaxSteps > 0 && o.steps >= o.cfg.MaxSteps {
			log.Info().Int("steps", o.steps).Msg("Reached maximum steps")
			return nil
		}
		o.Step(ctx)
	}
}

// Step executes the current node and advances to the next. It returns the
// node that ran.
func (o *Orchestrator) Step(ctx context.Context) Node {
	ran := o.node
	o.runNode(ctx, ran)
	o.steps++

	next := Next(ran, o.state.Status)
	log.Debug().
		Str("node", string(ran)).
		Str("status", string(o.state.Status)).
		Str("next", string(next)).
		Msg("Workflow step")
	o.node = next
	return ran
}

func (o *Orchestrator) runNode(ctx context.Context, n Node) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("node", string(n)).Interface("panic", r).Msg("Workflow node panicked")
			o.fail(eventType(n), fmt.Sprintf("panic in %s: %v", n, r))
		}
	}()

	switch n {
	case NodeGetFrame:
		o.getFrame(ctx)
	case NodeMotionDetection:
		o.motionDetection()
	case NodeDetailAnalysis:
		o.detailAnalysis(ctx)
	case NodeDangerDetection:
		o.dangerDetection(ctx)
	case NodeNotify:
		o.notify(ctx)
	case NodeRecordDiary:
		o.recordDiary(ctx)
	case NodeCheckDigest:
		o.checkDigest(ctx)
	case NodeError:
		o.onError(ctx)
	default:
		o.fail(EventUnknownError, "unknown node "+string(n))
	}
}

// eventType is the event reported when node n fails unexpectedly.
func eventType(n Node) string {
	switch n {
	case NodeGetFrame:
		return EventCameraError
	case NodeMotionDetection:
		return EventMotionError
	case NodeDetailAnalysis:
		return EventAPIError
	case NodeNotify:
		return EventNotificationError
	case NodeRecordDiary:
		return EventDiaryError
	case NodeCheckDigest:
		return EventDigestError
	default:
		return EventUnknownError
	}
}

func (o *Orchestrator) fail(typ, details string) {
	o.state.Status = StatusError
	o.state.Event = &eventlog.Event{Type: typ, Details: details, Level: eventlog.LevelError}
}

func (o *Orchestrator) getFrame(ctx context.Context) {
	cam := o.deps.Camera
	if !cam.IsActive() {
		if !cam.Start(ctx) || !cam.IsActive() {
			o.fail(EventCameraError, fmt.Sprintf("failed to start camera capture: %v", camera.ErrUnavailable))
			return
		}
	}

	f := cam.GetFrame(ctx)
	if f == nil {
		ev := eventlog.Event{Type: EventFrameError, Details: "No frame received from camera.", Level: eventlog.LevelWarning}
		o.state.Frame = nil
		o.state.Event = &ev
		o.state.Status = StatusNoFrame
		o.deps.Events.LogEvent(ctx, ev)
		return
	}
	o.state.Frame = f
	o.state.Event = nil
	o.state.Status = StatusFrameReady
}

func (o *Orchestrator) motionDetection() {
	if o.state.Frame == nil {
		o.state.MotionDetected = false
		o.fail(EventFrameError, "No frame available for motion detection.")
		return
	}
	// MotionDetected is cleared only by resetIteration in check_digest or
	// error. If this node is entered again before either runs, the
	// escalation already in flight continues without consulting the gate.
	if o.state.MotionDetected {
		log.Info().Msg("Motion already detected, continuing analysis")
		o.state.Status = StatusAnalyzing
		return
	}

	o.state.MotionDetected = o.deps.Motion.DetectMotion(o.state.Frame)
	if o.state.MotionDetected {
		log.Info().Msg("Motion detected, starting analysis")
		o.state.Status = StatusAnalyzing
		return
	}
	o.state.Status = StatusMonitoring
}

func (o *Orchestrator) detailAnalysis(ctx context.Context) {
	if o.state.Frame == nil {
		o.analysisFailed(ctx, "No frame available for analysis")
		return
	}
	start := time.Now()
	a := o.deps.Analyzer.Analyze(ctx, o.state.Frame)
	if a == nil {
		o.analysisFailed(ctx, "Analysis failed")
		return
	}
	log.Info().Int("results", len(a.Analyses)).Dur("elapsed", time.Since(start)).Msg("Frame analyzed")
	o.state.Analysis = a
	o.state.Status = StatusDetecting
}

func (o *Orchestrator) analysisFailed(ctx context.Context, details string) {
	o.fail(EventAPIError, details)
	o.deps.Events.LogEvent(ctx, *o.state.Event)
}

func (o *Orchestrator) dangerDetection(ctx context.Context) {
	ev := o.deps.Evaluator.Evaluate(o.state.Analysis)
	notify := o.deps.Evaluator.ShouldNotify(ev)
	o.state.Risk = &ev
	o.state.ShouldNotify = notify

	log.Info().
		Float64("riskScore", ev.RiskScore).
		Str("reason", ev.Reason).
		Bool("notify", notify).
		Msg("Risk evaluated")
	o.deps.Events.LogEvent(ctx, eventlog.Event{
		Type:    EventDangerDetection,
		Details: fmt.Sprintf("Danger: %t, Reason: %s, Score: %.2f", notify, ev.Reason, ev.RiskScore),
		Level:   eventlog.LevelInfo,
	})

	if !notify {
		o.state.Status = StatusRecordingDiary
		return
	}
	o.state.Status = StatusNotifying
	if o.deps.Publisher != nil {
		err := o.deps.Publisher.PublishDanger(ctx, alerts.DangerDetected{
			RiskScore: ev.RiskScore,
			Reason:    ev.Reason,
			Message:   ev.Message,
			At:        o.now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish danger event")
		}
	}
}

// NotificationSubject is the emergency email subject for reason.
func NotificationSubject(reason string) string {
	if reason == "" {
		reason = "unknown_danger"
	}
	return fmt.Sprintf("[DANGER] Baby alert (%s)", reason)
}

// NotificationBody is the emergency email body for message.
func NotificationBody(message string) string {
	if message == "" {
		message = "Unknown danger detected!"
	}
	return "[EMERGENCY]\n\n" + message + "\n\nPlease check on the baby immediately."
}

func (o *Orchestrator) notify(ctx context.Context) {
	ev := o.state.Risk
	if ev == nil {
		o.fail(EventNotificationError, "No risk evaluation available")
		return
	}

	subject := NotificationSubject(ev.Reason)
	o.state.Notified = o.deps.Notifier.Send(ctx, subject, NotificationBody(ev.Message), o.attachment())
	if o.state.Notified {
		log.Info().Str("reason", ev.Reason).Msg("Danger notification sent")
	} else {
		// Fail-open: the diary entry is still recorded.
		o.deps.Events.LogEvent(ctx, eventlog.Event{
			Type:    EventNotificationError,
			Details: fmt.Sprintf("Failed to send notification for: %s", ev.Reason),
			Level:   eventlog.LevelError,
		})
	}
	o.state.Status = StatusRecordingDiary
}

func (o *Orchestrator) attachment() []byte {
	if o.state.Frame == nil {
		return nil
	}
	data, err := o.state.Frame.EncodeJPEG(o.cfg.ImageQuality)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode frame attachment")
		return nil
	}
	return data
}

// DiaryDetails renders one iteration for the diary.
func DiaryDetails(s State) string {
	score, reason, message := 0.0, risk.ReasonNoAnalysis, ""
	if s.Risk != nil {
		score, reason, message = s.Risk.RiskScore, s.Risk.Reason, s.Risk.Message
	}
	results := 0
	if s.Analysis != nil {
		results = len(s.Analysis.Analyses)
	}
	details := fmt.Sprintf("risk=%.2f reason=%s notify=%t notified=%t results=%d", score, reason, s.ShouldNotify, s.Notified, results)
	if message != "" {
		details += " message=" + message
	}
	return details
}

func (o *Orchestrator) recordDiary(ctx context.Context) {
	o.deps.Diary.RecordEvent(ctx, diary.EventData{
		Type:        EventMonitoring,
		Details:     DiaryDetails(o.state),
		Image:       o.attachment(),
		IsHighlight: o.state.ShouldNotify,
	})
	o.state.Status = StatusCheckingDigest
}

func (o *Orchestrator) checkDigest(ctx context.Context) {
	status := StatusMonitoring
	if o.deps.Diary.ShouldSendDailyDigest() {
		log.Info().Msg("Sending daily digest")
		if !o.deps.Diary.SendDailyDigest(ctx) {
			status = StatusDigestError
			o.deps.Events.LogEvent(ctx, eventlog.Event{
				Type:    EventDigestError,
				Details: "Failed to send daily digest",
				Level:   eventlog.LevelError,
			})
		}
	}
	metrics.Monitor().Count("IterationsCompleted").Flush()
	o.state.resetIteration()
	o.state.Status = status
}

func (o *Orchestrator) onError(ctx context.Context) {
	ev := eventlog.Event{Type: EventUnknownError, Details: "Unknown error occurred", Level: eventlog.LevelError}
	if o.state.Event != nil {
		ev.Type, ev.Details = o.state.Event.Type, o.state.Event.Details
	}
	log.Error().Str("eventType", ev.Type).Str("details", ev.Details).Msg("Workflow error")
	o.deps.Events.LogEvent(ctx, ev)
	metrics.Monitor().Dimension("EventType", ev.Type).Count("WorkflowErrors").Flush()

	if err := o.sleep(ctx, o.cfg.ErrorWait); err != nil {
		log.Debug().Err(err).Msg("Error wait interrupted")
	}
	o.state.resetIteration()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
