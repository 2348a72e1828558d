package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/assets"
	"github.com/fpang/baby-monitor/internal/jsonutil"
)

// ActionSendEmail is the only action the gate executes.
const ActionSendEmail = "send_email_notification"

// Action is the structured decision requested before delivery.
type Action struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// ActionValidationError reports a reply that is not exactly one recognized action.
type ActionValidationError struct {
	Raw string
	Err error
}

func (e *ActionValidationError) Error() string {
	if e.Err != nil {
		return "invalid notification action: " + e.Err.Error()
	}
	return "invalid notification action"
}

func (e *ActionValidationError) Unwrap() error {
	return e.Err
}

// ActionSource produces the structured action reply.
type ActionSource interface {
	Summarize(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

var actionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"action": {Type: genai.TypeString, Enum: []string{ActionSendEmail}},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"action", "reason"},
}

// ActionGate asks the model for a notification action and forwards to the
// inner transport only when the reply validates.
type ActionGate struct {
	inner  Transport
	source ActionSource
}

// NewActionGate wraps inner.
func NewActionGate(inner Transport, source ActionSource) *ActionGate {
	return &ActionGate{inner: inner, source: source}
}

// Deliver implements Transport.
func (g *ActionGate) Deliver(ctx context.Context, subject, body string, image []byte) error {
	raw, err := g.source.Summarize(ctx, assets.RenderNotificationActionPrompt(subject, body), actionSchema)
	if err != nil {
		return fmt.Errorf("failed to request notification action: %w", err)
	}
	act, err := ValidateAction(raw)
	if err != nil {
		return err
	}
	log.Debug().Str("action", act.Action).Str("reason", act.Reason).Msg("Notification action validated")

	if act.Reason != "" {
		body = body + "\n\nReason: " + act.Reason
	}
	return g.inner.Deliver(ctx, subject, body, image)
}

// ValidateAction decodes raw strictly and checks the action kind.
func ValidateAction(raw string) (Action, error) {
	act, err := jsonutil.DecodeStrict[Action](raw)
	if err != nil {
		return Action{}, &ActionValidationError{Raw: raw, Err: err}
	}
	if act.Action != ActionSendEmail {
		return Action{}, &ActionValidationError{Raw: raw, Err: fmt.Errorf("unrecognized action %q", act.Action)}
	}
	return act, nil
}
