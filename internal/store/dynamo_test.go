package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fpang/baby-monitor/internal/diary"
	"github.com/fpang/baby-monitor/internal/metrics"
)

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	err   error
}

func key(item map[string]types.AttributeValue) string {
	return item["PK"].(*types.AttributeValueMemberS).Value + "|" + item["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[key(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[key(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDigestLedger(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	l := newDigestLedger(fake, "baby-monitor", "nursery")
	now := time.Date(2026, 5, 1, 21, 5, 0, 0, time.Local)
	l.now = func() time.Time { return now }

	if _, found, err := l.LastDigestSent(ctx); err != nil || found {
		t.Fatalf("empty ledger: found=%v err=%v", found, err)
	}

	if err := l.RecordDigestSent(ctx, now, "Diary (2026/05/01) - nap -", 12); err != nil {
		t.Fatalf("RecordDigestSent: %v", err)
	}
	if _, ok := fake.items["MONITOR#nursery|DIGEST#2026-05-01"]; !ok {
		t.Errorf("per-day item missing: %v", fake.items)
	}
	if _, ok := fake.items["MONITOR#nursery|DIGEST#LATEST"]["expiresAt"]; !ok {
		t.Error("latest item missing TTL attribute")
	}

	got, found, err := l.LastDigestSent(ctx)
	if err != nil || !found {
		t.Fatalf("LastDigestSent: found=%v err=%v", found, err)
	}
	if !got.Equal(now) {
		t.Errorf("LastDigestSent = %v, want %v", got, now)
	}
}

func TestDigestLedgerDateOnlyRecord(t *testing.T) {
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{
		"MONITOR#default|DIGEST#LATEST": {
			"PK":   &types.AttributeValueMemberS{Value: "MONITOR#default"},
			"SK":   &types.AttributeValueMemberS{Value: "DIGEST#LATEST"},
			"date": &types.AttributeValueMemberS{Value: "2026-05-01"},
		},
	}}
	l := newDigestLedger(fake, "t", "")

	got, found, err := l.LastDigestSent(context.Background())
	if err != nil || !found {
		t.Fatalf("LastDigestSent: found=%v err=%v", found, err)
	}
	if want := time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("LastDigestSent = %v, want %v", got, want)
	}
}

func TestRestartAfterDigestSkipsSentEntries(t *testing.T) {
	defer metrics.SetOutput(metrics.SetOutput(io.Discard))
	ctx := context.Background()
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	cfg := diary.Config{DigestTime: "21:00", LocalDir: t.TempDir()}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	ledger := newDigestLedger(fake, "baby-monitor", "nursery")
	first := diary.NewRecorder(cfg, nopSender{}, nil, diary.WithClock(clock), diary.WithLedger(ledger))
	first.Init(ctx)
	first.RecordEvent(ctx, diary.EventData{Type: "monitoring", Details: "morning nap"})

	now = time.Date(2026, 6, 1, 21, 1, 0, 0, time.Local)
	if !first.SendDailyDigest(ctx) {
		t.Fatal("SendDailyDigest = false")
	}

	now = time.Date(2026, 6, 1, 22, 0, 0, 0, time.Local)
	second := diary.NewRecorder(cfg, nopSender{}, nil, diary.WithClock(clock),
		diary.WithLedger(newDigestLedger(fake, "baby-monitor", "nursery")))
	second.Init(ctx)
	n, err := second.RestoreLocal(now)
	if err != nil || n != 0 {
		t.Fatalf("RestoreLocal after send = %d, %v; want 0", n, err)
	}

	now = time.Date(2026, 6, 2, 21, 30, 0, 0, time.Local)
	if d := second.GenerateDailyDigest(ctx); d != nil {
		t.Errorf("next day's digest re-covers sent entries: %q", d.Body)
	}
}

type nopSender struct{}

func (nopSender) Send(context.Context, string, string, []byte) bool { return true }

func TestDigestLedgerErrors(t *testing.T) {
	fake := &fakeDynamo{err: errors.New("throttled")}
	l := newDigestLedger(fake, "t", "")
	if l.monitorID != "default" {
		t.Errorf("monitorID = %q, want default", l.monitorID)
	}
	if _, _, err := l.LastDigestSent(context.Background()); err == nil {
		t.Error("expected GetItem error")
	}
	if err := l.RecordDigestSent(context.Background(), time.Now(), "s", 1); err == nil {
		t.Error("expected PutItem error")
	}
}
