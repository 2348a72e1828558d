package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/assets"
	"github.com/fpang/baby-monitor/internal/boot"
	"github.com/fpang/baby-monitor/internal/camera"
	"github.com/fpang/baby-monitor/internal/config"
	"github.com/fpang/baby-monitor/internal/diary"
	"github.com/fpang/baby-monitor/internal/eventlog"
	"github.com/fpang/baby-monitor/internal/logging"
	"github.com/fpang/baby-monitor/internal/motion"
	"github.com/fpang/baby-monitor/internal/notify"
	"github.com/fpang/baby-monitor/internal/perspective"
	"github.com/fpang/baby-monitor/internal/risk"
	"github.com/fpang/baby-monitor/internal/storage"
	"github.com/fpang/baby-monitor/internal/vision"
	"github.com/fpang/baby-monitor/internal/workflow"
)

// app is the fully wired monitor.
type app struct {
	cfg          *config.Config
	awsEnabled   bool
	Diary        *diary.Recorder
	Orchestrator *workflow.Orchestrator
	model        string
}

func mustBuild(ctx context.Context, cfg *config.Config) *app {
	a, err := build(ctx, cfg)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatal().Err(err).Str("key", cfgErr.Key).Msg("Configuration error")
		}
		log.Fatal().Err(err).Msg("Failed to start baby monitor")
	}
	return a
}

func needsAWS(cfg *config.Config) bool {
	r := cfg.AWS
	return r.StorageBucket != "" || r.DigestTable != "" || r.EventBusName != "" || r.EventLogGroup != ""
}

// resolveSecrets fills missing secrets from SSM. SSM is only consulted when
// AWS is reachable.
func resolveSecrets(ctx context.Context, cfg *config.Config, clients *boot.AWSClients) error {
	if clients == nil {
		return nil
	}
	var err error
	if cfg.Gemini.APIKey, err = boot.ResolveSecret(ctx, clients.SSM, cfg.Gemini.APIKey, cfg.Gemini.KeyParam); err != nil {
		return &config.ConfigurationError{Key: "GEMINI_API_KEY", Reason: "not in environment or SSM", Err: err}
	}
	switch cfg.Notify.Transport {
	case config.TransportSendGrid:
		if cfg.Notify.SendGridAPIKey, err = boot.ResolveSecret(ctx, clients.SSM, cfg.Notify.SendGridAPIKey, cfg.Notify.SendGridKeyParam); err != nil {
			return &config.ConfigurationError{Key: "SENDGRID_API_KEY", Reason: "not in environment or SSM", Err: err}
		}
	default:
		if cfg.SMTP.Username != "" {
			if cfg.SMTP.Password, err = boot.ResolveSecret(ctx, clients.SSM, cfg.SMTP.Password, cfg.SMTP.PasswordParam); err != nil {
				log.Warn().Err(err).Msg("SMTP password not resolved from SSM")
			}
		}
	}
	return nil
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	var clients *boot.AWSClients
	secretsMissing := cfg.Gemini.APIKey == "" ||
		(cfg.Notify.Transport == config.TransportSendGrid && cfg.Notify.SendGridAPIKey == "") ||
		(cfg.SMTP.Username != "" && cfg.SMTP.Password == "")
	if needsAWS(cfg) || secretsMissing {
		c, err := boot.InitAWS(ctx)
		switch {
		case err == nil:
			clients = &c
		case needsAWS(cfg):
			return nil, err
		default:
			log.Warn().Err(err).Msg("AWS unavailable, SSM secret lookup disabled")
		}
	}
	if err := resolveSecrets(ctx, cfg, clients); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gem, err := vision.NewGemini(ctx, cfg.Gemini.APIKey,
		vision.WithModel(cfg.Gemini.Model),
		vision.WithSystemInstruction(assets.VisionSystemPrompt))
	if err != nil {
		return nil, err
	}

	var transport notify.Transport
	if cfg.Notify.Transport == config.TransportSendGrid {
		transport = notify.NewSendGridTransport(notify.SendGridConfig{
			APIKey:   cfg.Notify.SendGridAPIKey,
			FromName: cfg.Notify.SendGridFromName,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
	} else {
		transport = notify.NewSMTPTransport(notify.SMTPConfig{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
	}
	if cfg.Notify.ActionGate {
		transport = notify.NewActionGate(transport, gem)
	}
	dispatcher := notify.NewDispatcher(transport)

	store := remoteStore(cfg, clients.Config)

	var logOpts []eventlog.Option
	if cfg.AWS.EventLogGroup != "" {
		stream := cfg.AWS.EventLogStream
		if stream == "" {
			stream = cfg.AWS.MonitorID
		}
		logOpts = append(logOpts, eventlog.WithSink(boot.InitLogSink(clients.Config, cfg.AWS.EventLogGroup, stream)))
	}
	events := eventlog.New(cfg.LogFile, store, cfg.LogDirRemote, logOpts...)
	events.Init(ctx)

	diaryOpts := []diary.Option{diary.WithStore(store)}
	if cfg.AWS.DigestTable != "" {
		diaryOpts = append(diaryOpts, diary.WithLedger(boot.InitDigestLedger(clients.Config, cfg.AWS.DigestTable, cfg.AWS.MonitorID)))
	}
	var publisher workflow.DangerPublisher
	if cfg.AWS.EventBusName != "" {
		p := boot.InitPublisher(clients.Config, cfg.AWS.EventBusName)
		publisher = p
		diaryOpts = append(diaryOpts, diary.WithPublisher(p))
	}
	recorder := diary.NewRecorder(diary.Config{
		DigestTime: cfg.DigestTime,
		LocalDir:   cfg.DiaryLocalDir,
		RemoteDir:  cfg.DiaryDirRemote,
	}, dispatcher, gem, diaryOpts...)
	recorder.Init(ctx)
	if _, err := recorder.RestoreLocal(time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to restore today's diary")
	}

	analyzer := perspective.NewAnalyzer(gem, perspective.Config{
		MaxRetry:     cfg.Gemini.MaxRetry,
		RetryWait:    cfg.Gemini.RetryWait,
		Timeout:      cfg.Gemini.Timeout,
		ImageMaxSize: cfg.ImageMaxSize,
		ImageQuality: cfg.ImageQuality,
		Concurrent:   cfg.Gemini.ConcurrentBranches,
	})

	orch := workflow.New(workflow.Deps{
		Camera:    newCamera(cfg),
		Motion:    motion.NewGate(cfg.MotionThreshold),
		Analyzer:  analyzer,
		Evaluator: risk.NewEvaluator(cfg.MinConfidence),
		Notifier:  dispatcher,
		Diary:     recorder,
		Events:    events,
		Publisher: publisher,
	}, workflow.Config{
		ErrorWait:    cfg.ErrorWait,
		MaxSteps:     cfg.MaxSteps,
		ImageQuality: cfg.ImageQuality,
	})

	return &app{
		cfg:          cfg,
		awsEnabled:   clients != nil,
		Diary:        recorder,
		Orchestrator: orch,
		model:        gem.Model(),
	}, nil
}

func newCamera(cfg *config.Config) *camera.RTSP {
	camCfg := camera.DefaultConfig(cfg.Camera.RTSPURL)
	camCfg.FrameRate = cfg.Camera.FrameRate
	camCfg.MaxRetry = cfg.Camera.MaxRetry
	camCfg.RetryWait = cfg.Camera.RetryWait
	return camera.NewRTSP(camCfg)
}

// startup collects the non-secret configuration for the startup event.
func (a *app) startup(name string) *logging.StartupLogger {
	cfg := a.cfg
	s := logging.NewStartupLogger(name).Version(version)
	if cfg.AWS.StorageBucket != "" {
		s.S3Bucket("storage", cfg.AWS.StorageBucket)
	}
	if cfg.AWS.DigestTable != "" {
		s.DynamoTable("digest", cfg.AWS.DigestTable)
	}
	if cfg.AWS.EventBusName != "" {
		s.EventBus("alerts", cfg.AWS.EventBusName)
	}
	if cfg.AWS.EventLogGroup != "" {
		s.LogGroup("events", cfg.AWS.EventLogGroup)
	}
	if a.awsEnabled {
		s.SSMParam("geminiKey", cfg.Gemini.KeyParam)
	}
	return s.
		Feature("aws", a.awsEnabled).
		Feature("sendgrid", cfg.Notify.Transport == config.TransportSendGrid).
		Feature("actionGate", cfg.Notify.ActionGate).
		Feature("concurrentBranches", cfg.Gemini.ConcurrentBranches).
		Config("model", a.model).
		Config("digestTime", cfg.DigestTime).
		Config("motionThreshold", strconv.Itoa(cfg.MotionThreshold)).
		Config("minConfidence", strconv.FormatFloat(cfg.MinConfidence, 'f', 2, 64)).
		Config("frameRate", strconv.Itoa(cfg.Camera.FrameRate)).
		Config("maxSteps", strconv.Itoa(cfg.MaxSteps))
}

// remoteStore returns the S3 mirror, or nil when no bucket is configured so
// the event log and diary keep their local copies only.
func remoteStore(cfg *config.Config, awsCfg aws.Config) storage.Store {
	if cfg.AWS.StorageBucket == "" {
		log.Info().Msg("No storage bucket configured, remote mirroring disabled")
		return nil
	}
	return boot.InitStorage(awsCfg, cfg.AWS.StorageBucket, cfg.AWS.StoragePrefix)
}
