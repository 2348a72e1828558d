// Package boot builds the AWS clients the monitor needs and resolves
// secrets that are not present in the environment.
//
// Every AWS-backed component is optional: a client is only created when
// its resource is configured, so the monitor runs fully local with no
// AWS credentials at all.
package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/alerts"
	"github.com/fpang/baby-monitor/internal/eventlog"
	"github.com/fpang/baby-monitor/internal/storage"
	"github.com/fpang/baby-monitor/internal/store"
)

// AWSClients holds the loaded AWS config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// InitStorage returns an S3 store for bucket.
func InitStorage(cfg aws.Config, bucket, prefix string) *storage.S3Store {
	log.Debug().Str("bucket", bucket).Str("prefix", prefix).Msg("S3 storage enabled")
	return storage.NewS3Store(s3.NewFromConfig(cfg), bucket, prefix)
}

// InitDigestLedger returns a DynamoDB digest ledger for table.
func InitDigestLedger(cfg aws.Config, table, monitorID string) *store.DigestLedger {
	log.Debug().Str("table", table).Str("monitorId", monitorID).Msg("DynamoDB digest ledger enabled")
	return store.NewDigestLedger(dynamodb.NewFromConfig(cfg), table, monitorID)
}

// InitPublisher returns an EventBridge publisher for bus.
func InitPublisher(cfg aws.Config, bus string) *alerts.Publisher {
	log.Debug().Str("bus", bus).Msg("EventBridge alerts enabled")
	return alerts.NewPublisher(eventbridge.NewFromConfig(cfg), bus)
}

// InitLogSink returns a CloudWatch Logs sink for the pipeline event log.
func InitLogSink(cfg aws.Config, group, stream string) *eventlog.CloudWatchSink {
	log.Debug().Str("group", group).Str("stream", stream).Msg("CloudWatch event log enabled")
	return eventlog.NewCloudWatchSink(cloudwatchlogs.NewFromConfig(cfg), group, stream)
}

// parameterAPI is the subset of the SSM client ResolveSecret uses.
type parameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecret returns current when it is set, otherwise the decrypted
// value of the SSM parameter at param.
func ResolveSecret(ctx context.Context, client parameterAPI, current, param string) (string, error) {
	if current != "" {
		return current, nil
	}
	if client == nil || param == "" {
		return "", nil
	}
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", param, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return *result.Parameter.Value, nil
}
