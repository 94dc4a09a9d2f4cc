package worker

import (
	"context"

	"ecom-agent/internal/broker"
	"ecom-agent/internal/models"
	"ecom-agent/internal/util"

	"go.uber.org/zap"
)

// AuditWorker turns query outcome events into audit log lines and metrics
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer) *AuditWorker {
	w := &AuditWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnQueryAnswered(w.HandleQueryAnswered)
	w.eventHandler.OnQueryFailed(w.HandleQueryFailed)

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}

// HandleQueryAnswered records an answered question
func (w *AuditWorker) HandleQueryAnswered(ctx context.Context, event *models.QueryAnsweredEvent) error {
	util.QueryEventsConsumedTotal.WithLabelValues(event.EventType).Inc()

	w.logger.Info("Query answered",
		zap.String("event_id", event.EventID),
		zap.String("question", event.Question),
		zap.String("source", event.Source),
		zap.Int("row_count", event.RowCount),
		zap.Bool("truncated", event.Truncated),
		zap.String("chart_type", event.ChartType),
		zap.Float64("duration_ms", event.DurationMs),
	)
	return nil
}

// HandleQueryFailed records a question that could not be answered
func (w *AuditWorker) HandleQueryFailed(ctx context.Context, event *models.QueryFailedEvent) error {
	util.QueryEventsConsumedTotal.WithLabelValues(event.EventType).Inc()

	w.logger.Warn("Query failed",
		zap.String("event_id", event.EventID),
		zap.String("question", event.Question),
		zap.String("error_kind", event.ErrorKind),
	)
	return nil
}
