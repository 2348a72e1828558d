// Package diary keeps the running record of the day's events and turns it
// into a daily digest email.
//
// Every mirror (local file, remote storage, ledger, alerts) is best-effort:
// a failing mirror is logged and never blocks recording or sending.
package diary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/baby-monitor/internal/alerts"
	"github.com/fpang/baby-monitor/internal/storage"
)

const (
	// DefaultDigestTime is used when the configured time does not parse.
	DefaultDigestTime = "21:00"
	// DefaultLocalDir is the local mirror directory.
	DefaultLocalDir = "diary_local_logs"

	// EventDailyDigest is the event type of digest entries; their images are not mirrored.
	EventDailyDigest = "daily_digest"

	timestampLayout = "2006-01-02 15:04:05"
)

// EventData is one event to record. Image is an optional JPEG.
type EventData struct {
	Type        string
	Details     string
	Image       []byte
	IsHighlight bool
}

// Entry is a recorded event.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Text        string
	Image       []byte
	IsHighlight bool
}

// Sender delivers the digest email.
type Sender interface {
	Send(ctx context.Context, subject, message string, attachment []byte) bool
}

// Summarizer turns the day's log into structured JSON.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Ledger persists when the last digest was sent. LastDigestSent returns the
// send instant, not just its date, so restored entries can be filtered.
type Ledger interface {
	LastDigestSent(ctx context.Context) (time.Time, bool, error)
	RecordDigestSent(ctx context.Context, sentAt time.Time, subject string, entries int) error
}

// DigestPublisher announces a sent digest.
type DigestPublisher interface {
	PublishDigest(ctx context.Context, ev alerts.DigestSent) error
}

// Config holds diary settings.
type Config struct {
	// DigestTime is the local "HH:MM" after which the digest becomes due.
	DigestTime string
	// LocalDir receives diary_YYYY-MM-DD.log and event images. Empty disables it.
	LocalDir string
	// RemoteDir is the diary directory in remote storage.
	RemoteDir string
}

// Recorder buffers entries for the current day and sends the digest.
type Recorder struct {
	cfg        Config
	sender     Sender
	summarizer Summarizer
	store      storage.Store
	ledger     Ledger
	publisher  DigestPublisher
	now        func() time.Time

	digestHour, digestMinute int

	mu       sync.Mutex
	entries  []Entry
	lastSent time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStore mirrors entries and digests to remote storage.
func WithStore(s storage.Store) Option { return func(r *Recorder) { r.store = s } }

// WithLedger persists the last digest date.
func WithLedger(l Ledger) Option { return func(r *Recorder) { r.ledger = l } }

// WithPublisher announces sent digests.
func WithPublisher(p DigestPublisher) Option { return func(r *Recorder) { r.publisher = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// NewRecorder returns a Recorder with an in-memory ledger unless WithLedger is given.
func NewRecorder(cfg Config, sender Sender, summarizer Summarizer, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:        cfg,
		sender:     sender,
		summarizer: summarizer,
		ledger:     NewMemoryLedger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	h, m, err := ParseDigestTime(cfg.DigestTime)
	if err != nil {
		log.Warn().Err(err).Str("digestTime", cfg.DigestTime).Msg("Invalid digest time, using " + DefaultDigestTime)
		h, m = 21, 0
	}
	r.digestHour, r.digestMinute = h, m
	return r
}

// ParseDigestTime parses "HH:MM".
func ParseDigestTime(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("digest time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("digest hour %q out of range", hs)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("digest minute %q out of range", ms)
	}
	return hour, minute, nil
}

// Init creates the remote diary directory and loads the last digest date.
func (r *Recorder) Init(ctx context.Context) {
	if r.store != nil && r.cfg.RemoteDir != "" {
		created, err := storage.EnsureDirectory(ctx, r.store, r.cfg.RemoteDir)
		if err != nil {
			log.Error().Err(err).Str("dir", r.cfg.RemoteDir).Msg("Failed to create remote diary directory")
		} else if created {
			log.Info().Str("dir", r.cfg.RemoteDir).Msg("Created remote diary directory")
		}
	}

	last, found, err := r.ledger.LastDigestSent(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load last digest date")
		return
	}
	if found {
		r.mu.Lock()
		r.lastSent = last
		r.mu.Unlock()
		log.Info().Time("sentAt", last).Msg("Loaded last digest")
	}
}

// RecordEvent appends an entry and mirrors it.
func (r *Recorder) RecordEvent(ctx context.Context, ev EventData) {
	now := r.now()
	typ := ev.Type
	if typ == "" {
		typ = "unknown"
	}
	details := ev.Details
	if details == "" {
		details = "N/A"
	}

	text := fmt.Sprintf("%s - Event: %s, Details: %s", now.Format(timestampLayout), typ, details)
	if ev.IsHighlight {
		text = fmt.Sprintf("%s - [HIGHLIGHT] Event: %s, Details: %s", now.Format(timestampLayout), typ, details)
	}
	entry := Entry{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Text:        text,
		Image:       ev.Image,
		IsHighlight: ev.IsHighlight,
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	log.Info().Str("entryId", entry.ID).Bool("highlight", entry.IsHighlight).Str("text", text).Msg("Diary entry recorded")

	saveImage := len(ev.Image) > 0 && typ != EventDailyDigest
	r.saveLocal(entry, saveImage)
	r.saveRemote(ctx, entry, saveImage)
}

func imageName(t time.Time) string {
	return "event_image_" + t.Format("20060102-150405") + ".jpg"
}

// LocalLogName returns the local diary file name for t.
func LocalLogName(t time.Time) string {
	return "diary_" + t.Format("2006-01-02") + ".log"
}

// RemoteTextName returns the remote diary text file name for t.
func RemoteTextName(t time.Time) string {
	return "diary_text_" + t.Format("20060102") + ".txt"
}

func (r *Recorder) saveLocal(e Entry, saveImage bool) {
	if r.cfg.LocalDir == "" {
		return
	}
	if err := os.MkdirAll(r.cfg.LocalDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", r.cfg.LocalDir).Msg("Failed to create local diary directory")
		return
	}

	lines := e.Text + "\n"
	if saveImage {
		imgPath := filepath.Join(r.cfg.LocalDir, imageName(e.Timestamp))
		if err := os.WriteFile(imgPath, e.Image, 0o644); err != nil {
			log.Error().Err(err).Str("path", imgPath).Msg("Failed to save diary image")
		} else {
			lines += "  - Image saved: " + imgPath + "\n"
		}
	}

	path := filepath.Join(r.cfg.LocalDir, LocalLogName(e.Timestamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open local diary file")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(lines); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write local diary file")
	}
}

func (r *Recorder) saveRemote(ctx context.Context, e Entry, saveImage bool) {
	if r.store == nil || r.cfg.RemoteDir == "" {
		return
	}
	if err := r.store.AppendTextFile(ctx, r.cfg.RemoteDir, RemoteTextName(e.Timestamp), e.Text+"\n"); err != nil {
		log.Error().Err(err).Msg("Failed to append remote diary text")
	}
	if saveImage {
		if err := r.store.UploadFile(ctx, r.cfg.RemoteDir, imageName(e.Timestamp), e.Image, "image/jpeg"); err != nil {
			log.Error().Err(err).Msg("Failed to upload diary image")
		}
	}
}

// Entries returns a copy of the buffered entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// ShouldSendDailyDigest reports whether the digest time has passed today,
// no digest has been sent today, and there is at least one entry.
func (r *Recorder) ShouldSendDailyDigest() bool {
	now := r.now()
	due := time.Date(now.Year(), now.Month(), now.Day(), r.digestHour, r.digestMinute, 0, 0, now.Location())

	r.mu.Lock()
	defer r.mu.Unlock()
	return !now.Before(due) && !r.sentOn(now) && len(r.entries) > 0
}

// sentOn requires r.mu.
func (r *Recorder) sentOn(day time.Time) bool {
	if r.lastSent.IsZero() {
		return false
	}
	y1, m1, d1 := r.lastSent.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
