package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

type fakeBridge struct {
	inputs []*eventbridge.PutEventsInput
	fail   bool
}

func (f *fakeBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.fail {
		return &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []eventbridgetypes.PutEventsResultEntry{{
				ErrorCode:    aws.String("InternalFailure"),
				ErrorMessage: aws.String("try again"),
			}},
		}, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestPublishDanger(t *testing.T) {
	fake := &fakeBridge{}
	p := &Publisher{client: fake, busName: "home"}

	err := p.PublishDanger(context.Background(), DangerDetected{
		RiskScore: 0.9, Reason: "detected_danger", Message: "m", At: time.Unix(100, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("PublishDanger: %v", err)
	}
	entry := fake.inputs[0].Entries[0]
	if aws.ToString(entry.Source) != Source || aws.ToString(entry.DetailType) != DetailDangerDetected {
		t.Errorf("entry = %+v", entry)
	}
	if aws.ToString(entry.EventBusName) != "home" {
		t.Errorf("bus = %q", aws.ToString(entry.EventBusName))
	}

	var detail DangerDetected
	if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.AlertID == "" || detail.Reason != "detected_danger" || detail.RiskScore != 0.9 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestPublishDigestDefaultBus(t *testing.T) {
	fake := &fakeBridge{}
	p := &Publisher{client: fake}
	if err := p.PublishDigest(context.Background(), DigestSent{AlertID: "fixed", Date: "2026-01-01"}); err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}
	if fake.inputs[0].Entries[0].EventBusName != nil {
		t.Error("default bus should leave EventBusName unset")
	}
}

func TestPublishFailedEntry(t *testing.T) {
	p := &Publisher{client: &fakeBridge{fail: true}}
	if err := p.PublishDanger(context.Background(), DangerDetected{}); err == nil {
		t.Fatal("expected error for failed entry")
	}
}
