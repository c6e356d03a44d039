package services

import (
	"context"
	"encoding/json"
	"time"

	"checkout-service/models"
	awspkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

// EventSink publishes checkout events to SNS and counts them in CloudWatch.
// Both outputs are optional and failures are logged only.
type EventSink struct {
	sns     awspkg.SNSPublisher
	topic   string
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger
}

func NewEventSink(sns awspkg.SNSPublisher, topic string, metrics awspkg.MetricsRecorder, logger *zap.Logger) *EventSink {
	return &EventSink{sns: sns, topic: topic, metrics: metrics, logger: logger}
}

func (e *EventSink) Publish(ctx context.Context, event models.CheckoutEvent) {
	if e == nil || e.sns == nil || e.topic == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := e.sns.Publish(ctx, e.topic, b); err != nil {
		e.logger.Error("Failed to publish SNS event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}
	e.logger.Info("Published SNS event", zap.String("event_type", event.EventType), zap.String("topic", e.topic))
}

func (e *EventSink) Count(ctx context.Context, metric string, dims map[string]string) {
	if e == nil || e.metrics == nil {
		return
	}
	if err := e.metrics.RecordCount(ctx, metric, dims); err != nil {
		e.logger.Debug("Metric not recorded", zap.String("metric", metric), zap.Error(err))
	}
}
