package perspective

import "strings"

const (
	defaultConfidence = 0.5
	postureConfidence = 0.8
	dangerConfidence  = 0.7
	normalConfidence  = 0.9
)

var (
	supineWords = []string{"supine", "lying on back", "仰向け"}
	proneWords  = []string{"prone", "face down", "うつ伏せ"}
	movingWords = []string{"moving", "active"}
	idleWords   = []string{"still", "idle"}
	dangerWords = []string{"danger", "risk", "危険"}
	normalWords = []string{"safe", "normal", "安全"}
)

// ParseResponse maps free-form reply text onto status, posture, action and
// confidence by keyword. Matching is case-insensitive; posture matches set the
// confidence to 0.8, a danger verdict raises it to at least 0.7 and a normal
// verdict to at least 0.9.
func ParseResponse(text string) Result {
	r := Result{
		Status:     StatusUnknown,
		Posture:    PostureUnknown,
		Action:     ActionUnknown,
		Confidence: defaultConfidence,
		RawText:    text,
	}
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, supineWords):
		r.Posture = PostureSupine
		r.Confidence = postureConfidence
	case containsAny(lower, proneWords):
		r.Posture = PostureProne
		r.Confidence = postureConfidence
	}

	switch {
	case containsAny(lower, movingWords):
		r.Action = ActionMovingLimbs
	case containsAny(lower, idleWords):
		r.Action = ActionIdle
	}

	switch {
	case containsAny(lower, dangerWords):
		r.Status = StatusDanger
		r.Confidence = max(r.Confidence, dangerConfidence)
	case containsAny(lower, normalWords):
		r.Status = StatusNormal
		r.Confidence = max(r.Confidence, normalConfidence)
	}
	return r
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
