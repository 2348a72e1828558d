package diary

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/alerts"
	"github.com/fpang/baby-monitor/internal/metrics"
	"github.com/fpang/baby-monitor/internal/storage"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 1, hour, minute, 0, 0, time.Local)
}

type fakeSender struct {
	calls   int
	fail    bool
	subject string
	body    string
	image   []byte
}

func (f *fakeSender) Send(_ context.Context, subject, message string, attachment []byte) bool {
	f.calls++
	f.subject, f.body, f.image = subject, message, attachment
	return !f.fail
}

type fakeSummarizer struct {
	reply string
	err   error
}

func (f fakeSummarizer) Summarize(context.Context, string, *genai.Schema) (string, error) {
	return f.reply, f.err
}

type fakePublisher struct{ events []alerts.DigestSent }

func (f *fakePublisher) PublishDigest(_ context.Context, ev alerts.DigestSent) error {
	f.events = append(f.events, ev)
	return nil
}

const digestJSON = `{"subject_highlight":"First smile","summary":"Calm day.","highlight":"Smiled at noon.","notifications":["Rolled onto tummy once"]}`

func newRecorder(t *testing.T, c *clock, s Sender, opts ...Option) *Recorder {
	t.Helper()
	opts = append([]Option{WithClock(c.now)}, opts...)
	return NewRecorder(Config{DigestTime: "21:00", LocalDir: t.TempDir(), RemoteDir: "diary"}, s, fakeSummarizer{reply: digestJSON}, opts...)
}

func TestShouldSendDailyDigestSchedule(t *testing.T) {
	c := &clock{t: at(20, 59)}
	sender := &fakeSender{}
	r := newRecorder(t, c, sender)
	r.RecordEvent(context.Background(), EventData{Type: "motion", Details: "moving"})

	if r.ShouldSendDailyDigest() {
		t.Error("20:59: ShouldSendDailyDigest = true, want false")
	}
	c.t = at(21, 1)
	if !r.ShouldSendDailyDigest() {
		t.Error("21:01: ShouldSendDailyDigest = false, want true")
	}
	if !r.SendDailyDigest(context.Background()) {
		t.Fatal("SendDailyDigest = false")
	}
	if r.ShouldSendDailyDigest() {
		t.Error("after send: ShouldSendDailyDigest = true, want false")
	}

	r.RecordEvent(context.Background(), EventData{Type: "motion", Details: "again"})
	if r.ShouldSendDailyDigest() {
		t.Error("new entry the same day must not make the digest due again")
	}
	c.t = at(21, 1).AddDate(0, 0, 1)
	if !r.ShouldSendDailyDigest() {
		t.Error("next day after digest time with entries should be due")
	}
}

func TestShouldSendRequiresEntries(t *testing.T) {
	c := &clock{t: at(22, 0)}
	r := newRecorder(t, c, &fakeSender{})
	if r.ShouldSendDailyDigest() {
		t.Error("no entries: ShouldSendDailyDigest = true")
	}
}

func TestInvalidDigestTimeFallsBack(t *testing.T) {
	c := &clock{t: at(20, 30)}
	r := NewRecorder(Config{DigestTime: "9pm"}, &fakeSender{}, nil, WithClock(c.now))
	r.RecordEvent(context.Background(), EventData{Type: "x"})
	if r.ShouldSendDailyDigest() {
		t.Error("20:30 with fallback 21:00 should not be due")
	}
	c.t = at(21, 0)
	if !r.ShouldSendDailyDigest() {
		t.Error("21:00 with fallback 21:00 should be due (inclusive)")
	}
}

func TestSendDailyDigestIdempotent(t *testing.T) {
	c := &clock{t: at(21, 30)}
	sender := &fakeSender{}
	r := newRecorder(t, c, sender)
	r.RecordEvent(context.Background(), EventData{Type: "danger_detection", Details: "score 0.9"})

	if !r.SendDailyDigest(context.Background()) {
		t.Fatal("first SendDailyDigest = false")
	}
	if len(r.Entries()) != 0 {
		t.Errorf("entries after send = %d, want 0", len(r.Entries()))
	}
	r.RecordEvent(context.Background(), EventData{Type: "late", Details: "after digest"})

	if !r.SendDailyDigest(context.Background()) {
		t.Fatal("second SendDailyDigest = false")
	}
	if sender.calls != 1 {
		t.Errorf("deliveries = %d, want 1", sender.calls)
	}
	if len(r.Entries()) != 1 {
		t.Errorf("second call must not clear entries, have %d", len(r.Entries()))
	}
}

func TestSendDailyDigestFailureKeepsEntries(t *testing.T) {
	c := &clock{t: at(21, 30)}
	sender := &fakeSender{fail: true}
	r := newRecorder(t, c, sender)
	r.RecordEvent(context.Background(), EventData{Type: "x"})

	if r.SendDailyDigest(context.Background()) {
		t.Fatal("SendDailyDigest = true for failing sender")
	}
	if len(r.Entries()) != 1 || !r.ShouldSendDailyDigest() {
		t.Error("failed send must keep entries and leave the digest due")
	}
}

func TestNothingToSendIsSuccess(t *testing.T) {
	sender := &fakeSender{}
	r := newRecorder(t, &clock{t: at(22, 0)}, sender)
	if !r.SendDailyDigest(context.Background()) {
		t.Error("empty diary: SendDailyDigest = false, want true")
	}
	if sender.calls != 0 {
		t.Error("empty diary must not deliver")
	}
}

func TestGenerateDailyDigestContent(t *testing.T) {
	c := &clock{t: at(21, 5)}
	r := newRecorder(t, c, &fakeSender{})
	ctx := context.Background()
	r.RecordEvent(ctx, EventData{Type: "motion", Image: []byte("first")})
	r.RecordEvent(ctx, EventData{Type: "danger", Image: []byte("highlight"), IsHighlight: true})
	r.RecordEvent(ctx, EventData{Type: "motion", Image: []byte("latest")})

	d := r.GenerateDailyDigest(ctx)
	if d == nil {
		t.Fatal("GenerateDailyDigest = nil")
	}
	if d.Subject != "Diary (2026/06/01) - First smile -" {
		t.Errorf("Subject = %q", d.Subject)
	}
	want := "Calm day.\n\n[Today's highlight]\nSmiled at noon.\n\n[Notices]\n- Rolled onto tummy once"
	if d.Body != want {
		t.Errorf("Body = %q, want %q", d.Body, want)
	}
	if string(d.Image) != "highlight" {
		t.Errorf("Image = %q, want highlight image", d.Image)
	}
	if d.Entries != 3 {
		t.Errorf("Entries = %d", d.Entries)
	}
}

func TestRepresentativeImage(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    string
	}{
		{"none", []Entry{{}, {}}, ""},
		{"latest", []Entry{{Image: []byte("a")}, {Image: []byte("b")}, {}}, "b"},
		{"highlight wins", []Entry{{Image: []byte("a"), IsHighlight: true}, {Image: []byte("b")}}, "a"},
		{"imageless highlight falls back", []Entry{{IsHighlight: true}, {Image: []byte("b")}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(representativeImage(tt.entries)); got != tt.want {
				t.Errorf("representativeImage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDigestFallback(t *testing.T) {
	c := &clock{t: at(21, 5)}
	r := NewRecorder(Config{DigestTime: "21:00"}, &fakeSender{}, fakeSummarizer{err: errors.New("quota")}, WithClock(c.now))
	r.RecordEvent(context.Background(), EventData{Type: "motion", Details: strings.Repeat("あ", 300)})

	d := r.GenerateDailyDigest(context.Background())
	if d == nil {
		t.Fatal("GenerateDailyDigest = nil")
	}
	if !strings.HasSuffix(d.Subject, "- Highlight -") {
		t.Errorf("Subject = %q", d.Subject)
	}
	summary, _, _ := strings.Cut(d.Body, "\n\n")
	if n := len([]rune(summary)); n != fallbackLength {
		t.Errorf("fallback summary has %d runes, want %d", n, fallbackLength)
	}
	if !strings.HasSuffix(d.Body, "No particular notices today.") {
		t.Errorf("Body should end with the no-notices line: %q", d.Body)
	}
}

func TestRecordEventMirrors(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: at(10, 15)}
	store := storage.NewMemoryStore()
	localDir := t.TempDir()
	r := NewRecorder(Config{DigestTime: "21:00", LocalDir: localDir, RemoteDir: "diary"}, &fakeSender{}, nil,
		WithClock(c.now), WithStore(store))
	r.Init(ctx)

	r.RecordEvent(ctx, EventData{Type: "danger_detection", Details: "risk", Image: []byte{0xFF, 0xD8}, IsHighlight: true})
	r.RecordEvent(ctx, EventData{Type: EventDailyDigest, Details: "digest", Image: []byte{0xFF}})

	local, err := os.ReadFile(filepath.Join(localDir, "diary_2026-06-01.log"))
	if err != nil {
		t.Fatalf("local diary: %v", err)
	}
	if !strings.Contains(string(local), "[HIGHLIGHT] Event: danger_detection, Details: risk") {
		t.Errorf("local diary = %q", local)
	}
	if _, err := os.Stat(filepath.Join(localDir, "event_image_20260601-101500.jpg")); err != nil {
		t.Errorf("local event image: %v", err)
	}

	remote, err := store.ReadFile(ctx, "diary", "diary_text_20260601.txt")
	if err != nil || strings.Count(string(remote), "\n") != 2 {
		t.Errorf("remote diary = %q, %v", remote, err)
	}
	images := 0
	for _, name := range store.Files("diary") {
		if strings.HasPrefix(name, "event_image_") {
			images++
		}
	}
	if images != 1 {
		t.Errorf("remote images = %d, want 1 (digest events are not mirrored)", images)
	}

	entries := r.Entries()
	if len(entries) != 2 || entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSendPersistsDigest(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: at(21, 10)}
	store := storage.NewMemoryStore()
	ledger := NewMemoryLedger()
	pub := &fakePublisher{}
	r := newRecorder(t, c, &fakeSender{}, WithStore(store), WithLedger(ledger), WithPublisher(pub))

	r.RecordEvent(ctx, EventData{Type: "motion", Details: "one", Image: []byte("img")})
	if !r.SendDailyDigest(ctx) {
		t.Fatal("SendDailyDigest = false")
	}

	textName, imageName, flagName, archiveName := DigestFileNames(c.t)
	for _, name := range []string{textName, imageName, flagName, archiveName} {
		if _, err := store.ReadFile(ctx, "diary", name); err != nil {
			t.Errorf("%s not persisted: %v", name, err)
		}
	}
	archived, _ := store.ReadFile(ctx, "diary", archiveName)
	raw, err := Decompress(archived)
	if err != nil || !strings.Contains(string(raw), "Event: motion, Details: one") {
		t.Errorf("archive = %q, %v", raw, err)
	}

	if last, ok, _ := ledger.LastDigestSent(ctx); !ok || !last.Equal(c.t) {
		t.Errorf("ledger last = %v, %v", last, ok)
	}
	if len(pub.events) != 1 || pub.events[0].Date != "2026-06-01" {
		t.Errorf("published = %+v", pub.events)
	}
}

func TestInitLoadsLedger(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: at(21, 30)}
	ledger := NewMemoryLedger()
	_ = ledger.RecordDigestSent(ctx, at(8, 0), "s", 1)

	r := newRecorder(t, c, &fakeSender{}, WithLedger(ledger))
	r.Init(ctx)
	r.RecordEvent(ctx, EventData{Type: "x"})
	if r.ShouldSendDailyDigest() {
		t.Error("digest recorded earlier today must not be resent after restart")
	}
}

func TestParseDigestTime(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"21:00", 21, 0, false},
		{" 7:05 ", 7, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseDigestTime(tt.in)
		if (err != nil) != tt.wantErr || h != tt.h || m != tt.m {
			t.Errorf("ParseDigestTime(%q) = %d, %d, %v", tt.in, h, m, err)
		}
	}
}

func TestRestoreLocal(t *testing.T) {
	ctx := context.Background()
	localDir := t.TempDir()
	c := &clock{t: at(9, 0)}
	cfg := Config{DigestTime: "21:00", LocalDir: localDir}

	first := NewRecorder(cfg, &fakeSender{}, nil, WithClock(c.now))
	first.RecordEvent(ctx, EventData{Type: "motion", Details: "morning", Image: []byte("jpeg")})
	c.t = at(9, 30)
	first.RecordEvent(ctx, EventData{Type: "danger", Details: "rolled", IsHighlight: true})

	second := NewRecorder(cfg, &fakeSender{}, nil, WithClock(c.now))
	n, err := second.RestoreLocal(c.t)
	if err != nil || n != 2 {
		t.Fatalf("RestoreLocal = %d, %v", n, err)
	}
	entries := second.Entries()
	if string(entries[0].Image) != "jpeg" || entries[0].IsHighlight {
		t.Errorf("first entry = %+v", entries[0])
	}
	if !entries[1].IsHighlight || !entries[1].Timestamp.Equal(at(9, 30)) {
		t.Errorf("second entry = %+v", entries[1])
	}

	ledger := NewMemoryLedger()
	_ = ledger.RecordDigestSent(ctx, at(9, 10), "s", 1)
	third := NewRecorder(cfg, &fakeSender{}, nil, WithClock(c.now), WithLedger(ledger))
	third.Init(ctx)
	if n, _ := third.RestoreLocal(c.t); n != 1 {
		t.Errorf("entries after the last digest = %d, want 1", n)
	}

	if n, err := second.RestoreLocal(at(9, 0).AddDate(0, 0, -1)); n != 0 || err != nil {
		t.Errorf("missing day = %d, %v", n, err)
	}
}
