package controllers

import (
	"context"
	"time"

	"wingo/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorSink persists anomaly reports.
type ErrorSink interface {
	LogError(ctx context.Context, entry models.ErrorLog) error
}

// Reporter records anomalies that must not stop the caller: a bad bet, a
// failed game tick. Each report is logged, counted and persisted.
type Reporter struct {
	sink  ErrorSink
	clock Clock
	log   *zap.SugaredLogger
}

func NewReporter(sink ErrorSink, clock Clock, log *zap.SugaredLogger) *Reporter {
	return &Reporter{sink: sink, clock: clock, log: log}
}

// Report returns the correlation id stamped on the log line and the stored entry.
func (r *Reporter) Report(ctx context.Context, source string, err error, fields map[string]any) string {
	id := uuid.NewString()
	mtxAnomalies.WithLabelValues(source).Inc()

	kv := []any{"source", source, "correlationId", id, "err", err}
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	r.log.Errorw("anomaly", kv...)

	if r.sink == nil {
		return id
	}
	// persist even when the caller's context is already cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	entry := models.ErrorLog{
		CorrelationID: id,
		Message:       err.Error(),
		Source:        source,
		Context:       fields,
		CreatedAt:     r.clock.Now(),
	}
	if perr := r.sink.LogError(ctx, entry); perr != nil {
		r.log.Warnw("failed to persist error log", "correlationId", id, "err", perr)
	}
	return id
}
