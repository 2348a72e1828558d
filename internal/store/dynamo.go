// Package store persists monitor state that must survive a restart, using a
// single DynamoDB table keyed by PK/SK.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// Key layout.
const (
	pkPrefix     = "MONITOR#"
	skDigest     = "DIGEST#"
	skDigestLast = "DIGEST#LATEST"

	// DigestTTL is how long per-day digest records are kept.
	DigestTTL = 90 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DigestRecord describes one sent digest.
type DigestRecord struct {
	Date    string    `dynamodbav:"date"`
	SentAt  time.Time `dynamodbav:"sentAt"`
	Subject string    `dynamodbav:"subject"`
	Entries int       `dynamodbav:"entries"`
}

// DigestLedger remembers which day's digest was last sent.
type DigestLedger struct {
	client    dynamoAPI
	tableName string
	monitorID string
	now       func() time.Time
}

// NewDigestLedger returns a ledger in tableName for monitorID. Several
// monitors can share one table.
func NewDigestLedger(client *dynamodb.Client, tableName, monitorID string) *DigestLedger {
	return newDigestLedger(client, tableName, monitorID)
}

func newDigestLedger(client dynamoAPI, tableName, monitorID string) *DigestLedger {
	if monitorID == "" {
		monitorID = "default"
	}
	return &DigestLedger{client: client, tableName: tableName, monitorID: monitorID, now: time.Now}
}

func (l *DigestLedger) pk() string { return pkPrefix + l.monitorID }

// LastDigestSent returns when the most recent digest was sent, or false when
// none has been recorded. Records without sentAt fall back to local midnight
// of their date.
func (l *DigestLedger) LastDigestSent(ctx context.Context) (time.Time, bool, error) {
	var rec DigestRecord
	found, err := l.getItem(ctx, l.pk(), skDigestLast, &rec)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	if !rec.SentAt.IsZero() {
		return rec.SentAt.Local(), true, nil
	}
	d, err := time.ParseInLocation(dateLayout, rec.Date, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse digest date %q: %w", rec.Date, err)
	}
	return d, true, nil
}

// RecordDigestSent stores a per-day record and moves the latest pointer.
// sentAt is the moment the digest went out; its local date keys the record.
func (l *DigestLedger) RecordDigestSent(ctx context.Context, sentAt time.Time, subject string, entries int) error {
	rec := DigestRecord{
		Date:    sentAt.Format(dateLayout),
		SentAt:  sentAt.UTC(),
		Subject: subject,
		Entries: entries,
	}
	if err := l.putItem(ctx, l.pk(), skDigest+rec.Date, rec); err != nil {
		return err
	}
	if err := l.putItem(ctx, l.pk(), skDigestLast, rec); err != nil {
		return err
	}
	log.Debug().Str("date", rec.Date).Str("table", l.tableName).Msg("Digest recorded in ledger")
	return nil
}

// putItem marshals data and writes it with PK, SK, and an expiresAt TTL.
func (l *DigestLedger) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(l.now().Add(DigestTTL).Unix(), 10)}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. It returns false if the item does not exist.
func (l *DigestLedger) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}
