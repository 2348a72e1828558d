package perspective

// Status is the coarse safety verdict of one perspective.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusDanger  Status = "danger"
	StatusUnknown Status = "unknown"
)

// Posture is the detected body position.
type Posture string

const (
	PostureSupine  Posture = "supine"
	PostureProne   Posture = "prone"
	PostureUnknown Posture = "unknown"
)

// Action is the detected activity.
type Action string

const (
	ActionMovingLimbs Action = "moving_limbs"
	ActionIdle        Action = "idle"
	ActionUnknown     Action = "unknown"
)

// Task is one prompt asked from one perspective.
type Task struct {
	Perspective string
	Prompt      string
}

// Branch groups tasks that are evaluated together.
type Branch struct {
	Name  string
	Tasks []Task
}

// Result is the outcome of a single task.
type Result struct {
	Perspective string  `json:"perspective"`
	Branch      string  `json:"branch"`
	Status      Status  `json:"status"`
	Posture     Posture `json:"posture"`
	Action      Action  `json:"action"`
	Confidence  float64 `json:"confidence"`
	RawText     string  `json:"raw_response"`
}

// Aggregated holds every result for one frame in branch then task order.
// An empty Analyses slice is a valid "nothing analyzed" outcome.
type Aggregated struct {
	Analyses []Result `json:"analyses"`
}

// unknownResult is returned once every attempt for a task has failed.
func unknownResult(branch string, task Task) Result {
	return Result{
		Perspective: task.Perspective,
		Branch:      branch,
		Status:      StatusUnknown,
		Posture:     PostureUnknown,
		Action:      ActionUnknown,
		Confidence:  defaultConfidence,
	}
}
