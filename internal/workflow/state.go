package workflow

import (
	"github.com/fpang/baby-monitor/internal/eventlog"
	"github.com/fpang/baby-monitor/internal/frame"
	"github.com/fpang/baby-monitor/internal/perspective"
	"github.com/fpang/baby-monitor/internal/risk"
)

// Node names a pipeline step.
type Node string

const (
	NodeGetFrame        Node = "get_frame"
	NodeMotionDetection Node = "motion_detection"
	NodeDetailAnalysis  Node = "detail_analysis"
	NodeDangerDetection Node = "danger_detection"
	NodeNotify          Node = "notify"
	NodeRecordDiary     Node = "record_diary"
	NodeCheckDigest     Node = "check_digest"
	NodeError           Node = "error"
)

// Status is the outcome a node leaves in the state. It selects the next node.
type Status string

const (
	StatusMonitoring     Status = "monitoring"
	StatusNoFrame        Status = "no_frame"
	StatusFrameReady     Status = "frame_ready"
	StatusAnalyzing      Status = "analyzing"
	StatusDetecting      Status = "detecting_danger"
	StatusNotifying      Status = "notifying"
	StatusRecordingDiary Status = "recording_diary"
	StatusCheckingDigest Status = "checking_digest"
	StatusDigestError    Status = "digest_error"
	StatusError          Status = "error"
)

// Event types written to the event log.
const (
	EventCameraError       = "camera_error"
	EventFrameError        = "frame_error"
	EventMotionError       = "motion_detection_error"
	EventAPIError          = "api_error"
	EventDangerDetection   = "danger_detection"
	EventNotificationError = "notification_error"
	EventDiaryError        = "diary_error"
	EventDigestError       = "digest_error"
	EventMonitoring        = "monitoring"
	EventUnknownError      = "unknown_error"
)

// State is the value carried through one pass of the pipeline.
type State struct {
	Frame          *frame.Frame
	MotionDetected bool
	Analysis       *perspective.Aggregated
	Risk           *risk.Evaluation
	ShouldNotify   bool
	Notified       bool
	Event          *eventlog.Event
	Status         Status
}

// resetIteration clears everything an escalation accumulated, including
// sticky motion.
func (s *State) resetIteration() {
	*s = State{Status: StatusMonitoring}
}

type transition struct {
	from   Node
	status Status
}

// transitions maps a node and the status it produced to the next node.
// StatusError from any node leads to NodeError.
var transitions = map[transition]Node{
	{NodeGetFrame, StatusFrameReady}:            NodeMotionDetection,
	{NodeGetFrame, StatusNoFrame}:               NodeGetFrame,
	{NodeMotionDetection, StatusAnalyzing}:      NodeDetailAnalysis,
	{NodeMotionDetection, StatusMonitoring}:     NodeGetFrame,
	{NodeDetailAnalysis, StatusDetecting}:       NodeDangerDetection,
	{NodeDangerDetection, StatusNotifying}:      NodeNotify,
	{NodeDangerDetection, StatusRecordingDiary}: NodeRecordDiary,
	{NodeNotify, StatusRecordingDiary}:          NodeRecordDiary,
	{NodeRecordDiary, StatusCheckingDigest}:     NodeCheckDigest,
	{NodeCheckDigest, StatusMonitoring}:         NodeGetFrame,
	{NodeCheckDigest, StatusDigestError}:        NodeGetFrame,
	{NodeError, StatusMonitoring}:               NodeGetFrame,
}

// Next returns the node that follows from after it produced status.
// Unknown pairs are treated as errors.
func Next(from Node, status Status) Node {
	if status == StatusError {
		return NodeError
	}
	if next, ok := transitions[transition{from, status}]; ok {
		return next
	}
	return NodeError
}
