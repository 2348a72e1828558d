package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts ---

// VisionSystemPrompt frames every perspective analysis call and pins down the
// vocabulary the keyword parser relies on.
//
//go:embed prompts/vision-system.txt
var VisionSystemPrompt string

// EmotionBehaviorPrompt asks about expression and movement.
//
//go:embed prompts/perspective-emotion-behavior.txt
var EmotionBehaviorPrompt string

// SafetyPosturePrompt asks about posture and breathing.
//
//go:embed prompts/perspective-safety-posture.txt
var SafetyPosturePrompt string

// EnvironmentEventPrompt asks about hazards in the surroundings.
//
//go:embed prompts/perspective-environment-event.txt
var EnvironmentEventPrompt string

// OverallSafetyPrompt asks for an overall danger level.
//
//go:embed prompts/perspective-overall-safety.txt
var OverallSafetyPrompt string

// --- Templates ---

//go:embed prompts/daily-digest.txt
var dailyDigestTemplate string

//go:embed prompts/notification-action.txt
var notificationActionTemplate string

var (
	digestTmpl = template.Must(template.New("digest").Parse(dailyDigestTemplate))
	actionTmpl = template.Must(template.New("action").Parse(notificationActionTemplate))
)

// RenderDailyDigestPrompt renders the digest prompt over the day's log text.
func RenderDailyDigestPrompt(log string) string {
	return render(digestTmpl, struct{ Log string }{Log: log})
}

// RenderNotificationActionPrompt renders the prompt that requests a single
// notification action for the given alert.
func RenderNotificationActionPrompt(subject, message string) string {
	return render(actionTmpl, struct{ Subject, Message string }{Subject: subject, Message: message})
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// Execution only fails on malformed templates, which template.Must already rejects.
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
