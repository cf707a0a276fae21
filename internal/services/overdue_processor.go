package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scadenzario/internal/core"
	"scadenzario/internal/records"
)

// OverdueProcessor announces PENDING installments whose due date has passed.
type OverdueProcessor struct {
	store     records.Store
	publisher Publisher
	batchSize int
}

func NewOverdueProcessor(store records.Store, publisher Publisher, batchSize int) *OverdueProcessor {
	if batchSize < 1 || batchSize > core.MaxPageSize {
		batchSize = core.MaxPageSize
	}
	return &OverdueProcessor{
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// ProcessOverdue publishes one event per PENDING installment due before the
// calendar day of now and returns how many were published.
func (p *OverdueProcessor) ProcessOverdue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.publisher == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	u := now.UTC()
	today := core.NewDate(u.Year(), int(u.Month()), u.Day())
	yesterday := core.Date{Time: today.AddDate(0, 0, -1)}

	f, err := core.ListFilter{Status: core.StatusPending, To: yesterday, Limit: p.batchSize}.Normalize()
	if err != nil {
		return 0, err
	}

	published := 0
	for page := 1; ; page++ {
		f.Page = page
		res, err := p.store.List(ctx, f)
		if err != nil {
			return published, fmt.Errorf("list overdue installments: %w", err)
		}

		for _, it := range res.Items {
			if err := p.publisher.PublishOverdue(ctx, it, today); err != nil {
				slog.ErrorContext(ctx, "Failed to publish overdue event",
					"id", it.ID,
					"series_id", it.SeriesID,
					"error", err)
				continue
			}
			published++
		}

		if page >= res.TotalPages || len(res.Items) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return published, err
		}
	}

	slog.InfoContext(ctx, "Processed overdue installments",
		"published", published,
		"as_of", today.String())
	return published, nil
}
