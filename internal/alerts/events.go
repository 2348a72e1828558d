// Package alerts publishes monitor events to Amazon EventBridge so other
// systems (home automation, paging) can react to them.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every published event.
const Source = "baby-monitor"

// Detail types.
const (
	DetailDangerDetected = "DangerDetected"
	DetailDigestSent     = "DailyDigestSent"
)

// DangerDetected is published when a notification is triggered.
type DangerDetected struct {
	AlertID   string    `json:"alertId"`
	RiskScore float64   `json:"riskScore"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// DigestSent is published after a daily digest is delivered.
type DigestSent struct {
	AlertID string    `json:"alertId"`
	Date    string    `json:"date"`
	Subject string    `json:"subject"`
	Entries int       `json:"entries"`
	At      time.Time `json:"at"`
}

type eventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one bus.
type Publisher struct {
	client  eventBridgeAPI
	busName string
}

// NewPublisher returns a Publisher for busName. An empty bus name selects
// the account's default bus.
func NewPublisher(client *eventbridge.Client, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// PublishDanger emits a DangerDetected event. A missing AlertID is generated.
func (p *Publisher) PublishDanger(ctx context.Context, ev DangerDetected) error {
	if ev.AlertID == "" {
		ev.AlertID = uuid.NewString()
	}
	return p.put(ctx, DetailDangerDetected, ev.AlertID, ev)
}

// PublishDigest emits a DigestSent event. A missing AlertID is generated.
func (p *Publisher) PublishDigest(ctx context.Context, ev DigestSent) error {
	if ev.AlertID == "" {
		ev.AlertID = uuid.NewString()
	}
	return p.put(ctx, DetailDigestSent, ev.AlertID, ev)
}

func (p *Publisher) put(ctx context.Context, detailType, id string, event any) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("alertId", id).Str("detailType", detailType).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("alertId", id).
					Str("detailType", detailType).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("alertId", id).Str("detailType", detailType).Msg("Event published to EventBridge")
	return nil
}
