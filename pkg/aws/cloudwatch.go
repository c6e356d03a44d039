package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// CloudWatchLogsWriter ships each written line to a CloudWatch Logs stream.
// It satisfies io.Writer so it can be tee'd into the zap core.
type CloudWatchLogsWriter struct {
	client        *cloudwatchlogs.Client
	logGroupName  string
	logStreamName string
	mu            sync.Mutex
	enabled       bool
}

func NewCloudWatchLogsWriter(ctx context.Context, cfg sdkaws.Config, serviceName string) (*CloudWatchLogsWriter, error) {
	group := os.Getenv("CLOUDWATCH_LOG_GROUP")
	if group == "" {
		group = "/ecommerce/services"
	}
	w := &CloudWatchLogsWriter{
		client:        cloudwatchlogs.NewFromConfig(cfg),
		logGroupName:  group,
		logStreamName: fmt.Sprintf("%s-%d", serviceName, time.Now().Unix()),
		enabled:       os.Getenv("CLOUDWATCH_ENABLED") == "true",
	}
	if !w.enabled {
		return w, nil
	}

	_, err := w.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: sdkaws.String(group)})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return nil, fmt.Errorf("failed to ensure log group: %w", err)
	}
	if _, err := w.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  sdkaws.String(group),
		LogStreamName: sdkaws.String(w.logStreamName),
	}); err != nil {
		return nil, fmt.Errorf("failed to create log stream: %w", err)
	}
	return w, nil
}

// Write never fails the caller; shipping errors go to stderr.
func (w *CloudWatchLogsWriter) Write(p []byte) (int, error) {
	if !w.enabled {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := w.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  sdkaws.String(w.logGroupName),
		LogStreamName: sdkaws.String(w.logStreamName),
		LogEvents: []types.InputLogEvent{{
			Message:   sdkaws.String(string(p)),
			Timestamp: sdkaws.Int64(time.Now().UnixMilli()),
		}},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "CloudWatch write error: %v\n", err)
	}
	return len(p), nil
}

func (w *CloudWatchLogsWriter) IsEnabled() bool {
	return w.enabled
}
