package worker

import (
	"context"
	"fmt"
	"time"

	"scadenzario/internal/amqp"
	"scadenzario/internal/log"
)

// OverdueScanner is implemented by services.OverdueProcessor.
type OverdueScanner interface {
	ProcessOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueWorker runs the overdue scan once on start and then on every tick.
type OverdueWorker struct {
	scanner  OverdueScanner
	interval time.Duration
	now      func() time.Time
	logger   *log.Logger
}

func NewOverdueWorker(scanner OverdueScanner, interval time.Duration, logger *log.Logger) *OverdueWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &OverdueWorker{
		scanner:  scanner,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// RunOnce performs a single scan and logs its outcome.
func (w *OverdueWorker) RunOnce(ctx context.Context) (int, error) {
	start := w.now()
	n, err := w.scanner.ProcessOverdue(ctx, start)
	if err != nil {
		w.logger.ErrorContext(ctx, "Overdue scan failed",
			log.FieldOperation, log.OpOverdue,
			log.FieldError, err)
		return n, err
	}
	w.logger.InfoContext(ctx, "Overdue scan completed",
		log.FieldOperation, log.OpOverdue,
		log.FieldCount, n,
		log.FieldDuration, w.now().Sub(start).Milliseconds())
	return n, nil
}

// Run blocks until ctx is done. Scan failures are logged and retried on the
// next tick.
func (w *OverdueWorker) Run(ctx context.Context) error {
	_, _ = w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// AuditHandler logs every lifecycle event read from the queue.
type AuditHandler struct {
	logger *log.Logger
}

func NewAuditHandler(logger *log.Logger) *AuditHandler {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentAMQP)
	}
	return &AuditHandler{logger: logger}
}

// HandleEvent decodes a delivery by routing key. Unknown keys are logged and
// acknowledged; malformed bodies are dropped rather than requeued forever.
func (h *AuditHandler) HandleEvent(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case amqp.RoutingSeriesCreated:
		var msg amqp.SeriesCreatedMessage
		if err := d.Decode(&msg); err != nil {
			return h.malformed(ctx, d, err)
		}
		h.logger.InfoContext(ctx, "Series created",
			log.FieldSeriesID, msg.SeriesID,
			log.FieldCount, msg.Count,
			"total_cents", msg.TotalCents,
			"type", msg.Type,
			"first_due_date", msg.FirstDueDate)

	case amqp.RoutingInstallmentSettled, amqp.RoutingInstallmentCanceled:
		var msg amqp.InstallmentStatusMessage
		if err := d.Decode(&msg); err != nil {
			return h.malformed(ctx, d, err)
		}
		h.logger.InfoContext(ctx, "Installment status changed",
			log.FieldID, msg.ID,
			log.FieldSeriesID, msg.SeriesID,
			log.FieldInstallment, msg.InstallmentNumber,
			"from", msg.From,
			"to", msg.To)

	case amqp.RoutingInstallmentOverdue:
		var msg amqp.InstallmentOverdueMessage
		if err := d.Decode(&msg); err != nil {
			return h.malformed(ctx, d, err)
		}
		h.logger.WarnContext(ctx, "Installment overdue",
			log.FieldID, msg.ID,
			log.FieldSeriesID, msg.SeriesID,
			"due_date", msg.DueDate,
			"days_overdue", msg.DaysOverdue)

	default:
		h.logger.WarnContext(ctx, "Unknown event", log.FieldRoutingKey, d.RoutingKey)
	}
	return nil
}

func (h *AuditHandler) malformed(ctx context.Context, d amqp.Delivery, err error) error {
	h.logger.ErrorContext(ctx, "Malformed event dropped",
		log.FieldRoutingKey, d.RoutingKey,
		log.FieldError, fmt.Errorf("decode: %w", err))
	return nil
}
