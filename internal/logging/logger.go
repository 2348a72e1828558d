package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// LevelEnv selects the log level: debug, info, warn, error (default: info).
	LevelEnv = "BABY_MONITOR_LOG_LEVEL"
	// FormatEnv set to "json" disables the console writer.
	FormatEnv = "BABY_MONITOR_LOG_FORMAT"
)

// Init initializes the global logger from the environment.
func Init() {
	InitTo(os.Stderr)
}

// InitTo initializes the global logger writing to w.
func InitTo(w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnv)))

	if strings.EqualFold(os.Getenv(FormatEnv), "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
