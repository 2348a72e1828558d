package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

type cloudWatchAPI interface {
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchSink writes each event to a CloudWatch Logs stream. The stream
// is created on first use; an existing stream is reused.
type CloudWatchSink struct {
	client cloudWatchAPI
	group  string
	stream string

	mu      sync.Mutex
	created bool
}

// NewCloudWatchSink returns a sink for group/stream.
func NewCloudWatchSink(client *cloudwatchlogs.Client, group, stream string) *CloudWatchSink {
	return &CloudWatchSink{client: client, group: group, stream: stream}
}

// WriteEvent implements Sink.
func (c *CloudWatchSink) WriteEvent(ctx context.Context, at time.Time, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.created {
		_, err := c.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
			LogGroupName:  &c.group,
			LogStreamName: &c.stream,
		})
		var exists *types.ResourceAlreadyExistsException
		if err != nil && !errors.As(err, &exists) {
			return fmt.Errorf("CloudWatch CreateLogStream: %w", err)
		}
		c.created = true
	}

	_, err := c.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  &c.group,
		LogStreamName: &c.stream,
		LogEvents: []types.InputLogEvent{{
			Message:   aws.String(line),
			Timestamp: aws.Int64(at.UnixMilli()),
		}},
	})
	if err != nil {
		return fmt.Errorf("CloudWatch PutLogEvents: %w", err)
	}
	return nil
}
