// Package config loads the monitor configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Default SSM parameter paths for secrets missing from the environment.
const (
	DefaultGeminiKeyParam    = "/baby-monitor/prod/gemini-api-key"
	DefaultSMTPPasswordParam = "/baby-monitor/prod/smtp-password"
	DefaultSendGridKeyParam  = "/baby-monitor/prod/sendgrid-api-key"
)

// Notification transports.
const (
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
)

// ConfigurationError reports a missing or malformed setting.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Camera holds RTSP settings.
type Camera struct {
	RTSPURL   string
	FrameRate int
	MaxRetry  int
	RetryWait time.Duration
}

// Gemini holds vision service settings.
type Gemini struct {
	APIKey             string
	KeyParam           string
	Model              string
	MaxRetry           int
	RetryWait          time.Duration
	Timeout            time.Duration
	ConcurrentBranches bool
}

// SMTP holds mail server settings.
type SMTP struct {
	Server        string
	Port          int
	Username      string
	Password      string
	PasswordParam string
	From          string
	To            string
}

// Notify selects and configures the notification transport.
type Notify struct {
	Transport        string
	SendGridAPIKey   string
	SendGridKeyParam string
	SendGridFromName string
	ActionGate       bool
}

// AWS names the optional cloud resources. Empty values disable them.
type AWS struct {
	StorageBucket  string
	StoragePrefix  string
	DigestTable    string
	MonitorID      string
	EventBusName   string
	EventLogGroup  string
	EventLogStream string
}

// Config is the full monitor configuration.
type Config struct {
	Camera          Camera
	Gemini          Gemini
	SMTP            SMTP
	Notify          Notify
	AWS             AWS
	MotionThreshold int
	MinConfidence   float64
	ImageMaxSize    int
	ImageQuality    int
	DigestTime      string
	LogFile         string
	LogDirRemote    string
	DiaryDirRemote  string
	DiaryLocalDir   string
	ErrorWait       time.Duration
	MaxSteps        int
}

// Load reads envFile when it exists, then the environment. A missing file
// is not an error. Secrets are not validated here; see Validate.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, &ConfigurationError{Key: envFile, Reason: "cannot read env file", Err: err}
			}
			log.Debug().Str("file", envFile).Msg("No env file, using process environment")
		}
	}

	p := &parser{}
	cfg := &Config{
		Camera: Camera{
			RTSPURL:   getEnv("CAMERA_RTSP_URL", "rtsp://your_camera_ip/stream"),
			FrameRate: p.int("CAMERA_FRAME_RATE", 5),
			MaxRetry:  p.int("CAMERA_MAX_RETRY", 3),
			RetryWait: p.duration("CAMERA_RETRY_WAIT", 2*time.Second),
		},
		Gemini: Gemini{
			APIKey:             os.Getenv("GEMINI_API_KEY"),
			KeyParam:           getEnv("SSM_GEMINI_KEY_PARAM", DefaultGeminiKeyParam),
			Model:              os.Getenv("GEMINI_MODEL"),
			MaxRetry:           p.int("GEMINI_MAX_RETRY", 3),
			RetryWait:          p.duration("GEMINI_RETRY_WAIT", time.Second),
			Timeout:            p.duration("GEMINI_TIMEOUT", 15*time.Second),
			ConcurrentBranches: p.bool("ANALYSIS_CONCURRENT_BRANCHES", false),
		},
		SMTP: SMTP{
			Server:        getEnv("SMTP_SERVER", "smtp.gmail.com"),
			Port:          p.int("SMTP_PORT", 587),
			Username:      os.Getenv("SMTP_USERNAME"),
			Password:      os.Getenv("SMTP_PASSWORD"),
			PasswordParam: getEnv("SSM_SMTP_PASSWORD_PARAM", DefaultSMTPPasswordParam),
			From:          os.Getenv("FROM_EMAIL"),
			To:            os.Getenv("TO_EMAIL"),
		},
		Notify: Notify{
			Transport:        strings.ToLower(getEnv("NOTIFY_TRANSPORT", TransportSMTP)),
			SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
			SendGridKeyParam: getEnv("SSM_SENDGRID_KEY_PARAM", DefaultSendGridKeyParam),
			SendGridFromName: getEnv("SENDGRID_FROM_NAME", "Baby Monitor"),
			ActionGate:       p.bool("NOTIFY_ACTION_GATE", false),
		},
		AWS: AWS{
			StorageBucket:  os.Getenv("STORAGE_BUCKET"),
			StoragePrefix:  os.Getenv("STORAGE_PREFIX"),
			DigestTable:    os.Getenv("DIGEST_TABLE"),
			MonitorID:      getEnv("MONITOR_ID", "default"),
			EventBusName:   os.Getenv("EVENT_BUS_NAME"),
			EventLogGroup:  os.Getenv("EVENT_LOG_GROUP"),
			EventLogStream: os.Getenv("EVENT_LOG_STREAM"),
		},
		MotionThreshold: p.int("MOTION_THRESHOLD", 5000),
		MinConfidence:   p.float("MIN_CONFIDENCE_SCORE", 0.7),
		ImageMaxSize:    p.int("IMAGE_MAX_SIZE", 1024),
		ImageQuality:    p.int("IMAGE_QUALITY", 85),
		DigestTime:      getEnv("DAILY_DIGEST_TIME", "21:00"),
		LogFile:         getEnv("LOG_FILE", "baby_monitor.log"),
		LogDirRemote:    getEnv("LOG_DIR_REMOTE", "baby_monitor_logs"),
		DiaryDirRemote:  getEnv("DIARY_DIR_REMOTE", "baby_monitor_diary"),
		DiaryLocalDir:   getEnv("DIARY_LOCAL_DIR", "diary_local_logs"),
		ErrorWait:       p.duration("ERROR_WAIT", 5*time.Second),
		MaxSteps:        p.int("MAX_STEPS", 0),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.ImageQuality < 1 || cfg.ImageQuality > 100 {
		return nil, &ConfigurationError{Key: "IMAGE_QUALITY", Reason: "must be between 1 and 100"}
	}
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		return nil, &ConfigurationError{Key: "MIN_CONFIDENCE_SCORE", Reason: "must be greater than 0 and at most 1"}
	}
	if cfg.Notify.Transport != TransportSMTP && cfg.Notify.Transport != TransportSendGrid {
		return nil, &ConfigurationError{Key: "NOTIFY_TRANSPORT", Reason: "must be smtp or sendgrid"}
	}
	return cfg, nil
}

// Validate checks the secrets the monitor cannot run without. Call it
// after secrets have been resolved from SSM.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return &ConfigurationError{Key: "GEMINI_API_KEY", Reason: "is not set"}
	}
	switch c.Notify.Transport {
	case TransportSendGrid:
		if c.Notify.SendGridAPIKey == "" {
			return &ConfigurationError{Key: "SENDGRID_API_KEY", Reason: "is required for the sendgrid transport"}
		}
	default:
		if c.SMTP.Server == "" {
			return &ConfigurationError{Key: "SMTP_SERVER", Reason: "is not set"}
		}
	}
	if c.SMTP.From == "" || c.SMTP.To == "" {
		return &ConfigurationError{Key: "FROM_EMAIL/TO_EMAIL", Reason: "both addresses are required"}
	}
	return nil
}

// getEnv gets an environment variable with a fallback default value.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser keeps the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid value %q", value), Err: err}
	}
}

func (p *parser) int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

// ParseDuration accepts Go duration syntax ("1.5s", "200ms") or a plain
// number of seconds ("2", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
