// Package eventlog records pipeline events to a local file, the remote log
// directory, and optional extra sinks. Every destination is best-effort:
// failures are logged and never returned to the pipeline.
package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/storage"
)

// Level is an event severity.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Event is one pipeline occurrence.
type Event struct {
	Type    string
	Details string
	Level   Level
}

// Sink receives formatted event lines.
type Sink interface {
	WriteEvent(ctx context.Context, at time.Time, line string) error
}

// Logger fans events out to its destinations.
type Logger struct {
	localPath string
	store     storage.Store
	remoteDir string
	sinks     []Sink
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink adds an extra destination.
func WithSink(s Sink) Option {
	return func(l *Logger) { l.sinks = append(l.sinks, s) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New returns a Logger writing to localPath and to remoteDir in store.
// Either destination may be disabled with an empty path or a nil store.
func New(localPath string, store storage.Store, remoteDir string, opts ...Option) *Logger {
	l := &Logger{localPath: localPath, store: store, remoteDir: remoteDir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init creates the remote log directory if needed.
func (l *Logger) Init(ctx context.Context) {
	if l.store == nil || l.remoteDir == "" {
		return
	}
	created, err := storage.EnsureDirectory(ctx, l.store, l.remoteDir)
	if err != nil {
		log.Error().Err(err).Str("dir", l.remoteDir).Msg("Failed to create remote log directory")
		return
	}
	if created {
		log.Info().Str("dir", l.remoteDir).Msg("Created remote log directory")
	}
}

// RemoteFileName returns the remote log file name for t.
func RemoteFileName(t time.Time) string {
	return "baby_monitor_log_" + t.Format("20060102") + ".log"
}

// FormatLine renders ev as a single log line ending in a newline.
func FormatLine(at time.Time, ev Event) string {
	typ := ev.Type
	if typ == "" {
		typ = "unknown"
	}
	details := ev.Details
	if details == "" {
		details = "N/A"
	}
	details = strings.ReplaceAll(details, "\n", " ")
	return fmt.Sprintf("%s - %s - eventlog - Event: %s, Details: %s\n",
		at.Format("2006-01-02 15:04:05"), normalizeLevel(ev.Level), typ, details)
}

// LogEvent records ev to every destination.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	at := l.now()
	line := FormatLine(at, ev)

	log.WithLevel(zerologLevel(ev.Level)).
		Str("eventType", ev.Type).
		Str("details", ev.Details).
		Msg("Pipeline event")

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.localPath != "" {
		if err := appendFile(l.localPath, line); err != nil {
			log.Error().Err(err).Str("path", l.localPath).Msg("Failed to write local event log")
		}
	}
	if l.store != nil && l.remoteDir != "" {
		if err := l.store.AppendTextFile(ctx, l.remoteDir, RemoteFileName(at), line); err != nil {
			log.Error().Err(err).Str("dir", l.remoteDir).Msg("Failed to write remote event log")
		}
	}
	for _, s := range l.sinks {
		if err := s.WriteEvent(ctx, at, strings.TrimSuffix(line, "\n")); err != nil {
			log.Error().Err(err).Msg("Failed to write event to sink")
		}
	}
}

func appendFile(path, line string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func normalizeLevel(l Level) Level {
	switch Level(strings.ToUpper(string(l))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarning, "WARN":
		return LevelWarning
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func zerologLevel(l Level) zerolog.Level {
	switch normalizeLevel(l) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
