package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeSource struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeSource) Summarize(_ context.Context, prompt string, _ *genai.Schema) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestActionGate(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		sourceErr     error
		wantDelivered bool
		wantInvalid   bool
	}{
		{"valid", `{"action":"send_email_notification","reason":"baby prone"}`, nil, true, false},
		{"fenced", "```json\n{\"action\":\"send_email_notification\",\"reason\":\"x\"}\n```", nil, true, false},
		{"wrong action", `{"action":"call_parents","reason":"x"}`, nil, false, true},
		{"unknown field", `{"action":"send_email_notification","reason":"x","to":"someone"}`, nil, false, true},
		{"two actions", `[{"action":"send_email_notification"},{"action":"send_email_notification"}]`, nil, false, true},
		{"prose", "I will send the email now.", nil, false, true},
		{"source error", "", errors.New("quota"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingTransport{}
			src := &fakeSource{reply: tt.reply, err: tt.sourceErr}
			gate := NewActionGate(inner, src)

			err := gate.Deliver(context.Background(), "[DANGER] Baby alert (detected_danger)", "details", nil)
			delivered := inner.calls == 1
			if delivered != tt.wantDelivered {
				t.Errorf("delivered = %v, want %v (err %v)", delivered, tt.wantDelivered, err)
			}
			var valErr *ActionValidationError
			if got := errors.As(err, &valErr); got != tt.wantInvalid {
				t.Errorf("ActionValidationError = %v, want %v (err %v)", got, tt.wantInvalid, err)
			}
			if tt.wantDelivered && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !strings.Contains(src.prompt, "detected_danger") {
				t.Error("prompt should carry the alert subject")
			}
		})
	}
}

func TestActionGateAppendsReason(t *testing.T) {
	inner := &countingTransport{}
	gate := NewActionGate(inner, &fakeSource{reply: `{"action":"send_email_notification","reason":"face covered"}`})
	if err := gate.Deliver(context.Background(), "s", "body", nil); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !strings.HasSuffix(inner.last.body, "Reason: face covered") {
		t.Errorf("body = %q", inner.last.body)
	}
}

func TestActionGateCountsAsFailedAttempt(t *testing.T) {
	inner := &countingTransport{}
	src := &fakeSource{reply: `{"action":"nothing"}`}
	d, _ := newTestDispatcher(NewActionGate(inner, src))
	if d.Send(context.Background(), "s", "b", nil) {
		t.Fatal("Send = true with an invalid action")
	}
	if inner.calls != 0 {
		t.Errorf("inner transport called %d times", inner.calls)
	}
}
