package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scadenzario/internal/core"
	"scadenzario/internal/records"
)

// maxTransitionAttempts bounds the re-read loop after a lost compare-and-swap.
const maxTransitionAttempts = 3

// Publisher receives lifecycle events. Publishing is best effort.
type Publisher interface {
	PublishSeriesCreated(ctx context.Context, sum core.SeriesSummary, first core.Installment) error
	PublishStatusChanged(ctx context.Context, it core.Installment, from core.Status) error
	PublishOverdue(ctx context.Context, it core.Installment, today core.Date) error
}

// CreateResult holds the created record for a series of one, or the
// summary of a longer series.
type CreateResult struct {
	Installment *core.Installment
	Summary     *core.SeriesSummary
}

// TransitionResult is the outcome of a settle or cancel request.
type TransitionResult struct {
	Found       bool
	Changed     bool
	Installment core.Installment
}

// SeriesService creates installment series and drives their status.
type SeriesService struct {
	store     records.Store
	refs      records.ReferenceStore
	publisher Publisher
	ids       IDGenerator
}

// NewSeriesService wires the service. publisher may be nil; ids defaults to
// random UUIDs.
func NewSeriesService(store records.Store, refs records.ReferenceStore, publisher Publisher, ids IDGenerator) *SeriesService {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &SeriesService{
		store:     store,
		refs:      refs,
		publisher: publisher,
		ids:       ids,
	}
}

// CreateSeries builds and atomically stores the installments of req.
func (s *SeriesService) CreateSeries(ctx context.Context, req core.SeriesRequest) (CreateResult, error) {
	if err := req.Validate(); err != nil {
		return CreateResult{}, err
	}
	if err := s.checkReferences(ctx, req.CategoryID, req.PaymentMethodID, ""); err != nil {
		return CreateResult{}, err
	}

	seriesID := s.ids.NewID()
	items, err := core.BuildSeries(req, seriesID)
	if err != nil {
		return CreateResult{}, err
	}

	saved, err := s.store.InsertMany(ctx, items)
	if err != nil {
		return CreateResult{}, fmt.Errorf("save series: %w", err)
	}
	sum := core.Summarize(saved)

	slog.InfoContext(ctx, "Series created",
		"series_id", sum.SeriesID,
		"count", sum.Count,
		"total", sum.Total.String(),
		"mode", req.Amount.Mode.String(),
		"type", req.Type)

	if s.publisher != nil {
		if err := s.publisher.PublishSeriesCreated(ctx, sum, saved[0]); err != nil {
			slog.ErrorContext(ctx, "Failed to publish series event", "series_id", sum.SeriesID, "error", err)
		}
	}

	if sum.Count == 1 {
		it, err := s.store.FindInstallment(ctx, seriesID, 1)
		if err != nil {
			return CreateResult{}, fmt.Errorf("read created installment: %w", err)
		}
		return CreateResult{Installment: &it}, nil
	}
	return CreateResult{Summary: &sum}, nil
}

// Settle marks a PENDING installment PAID (expense) or RECEIVED (income).
// Settling an already settled or canceled installment is a successful no-op.
// A missing id yields Found=false and no error.
func (s *SeriesService) Settle(ctx context.Context, id int64) (TransitionResult, error) {
	return s.transition(ctx, id, "settle", func(it core.Installment) (core.Status, bool, error) {
		return core.NextSettlementStatus(it.Status, it.Type)
	})
}

// Cancel marks a PENDING installment CANCELED. Canceling twice is a no-op;
// canceling a settled installment fails with core.ErrInvalidTransition.
func (s *SeriesService) Cancel(ctx context.Context, id int64) (TransitionResult, error) {
	return s.transition(ctx, id, "cancel", func(it core.Installment) (core.Status, bool, error) {
		return core.NextCancelStatus(it.Status)
	})
}

func (s *SeriesService) transition(ctx context.Context, id int64, op string, next func(core.Installment) (core.Status, bool, error)) (TransitionResult, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		it, err := s.store.FindByID(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return TransitionResult{Found: false}, nil
		}
		if err != nil {
			return TransitionResult{}, fmt.Errorf("%s: load installment: %w", op, err)
		}

		target, changed, err := next(it)
		if err != nil {
			return TransitionResult{Found: true, Installment: it}, err
		}
		if !changed {
			slog.DebugContext(ctx, "Status transition is a no-op", "op", op, "id", id, "status", it.Status)
			return TransitionResult{Found: true, Installment: it}, nil
		}

		swapped, err := s.store.CompareAndSwapStatus(ctx, id, it.Status, target)
		if err != nil {
			return TransitionResult{}, fmt.Errorf("%s: write status: %w", op, err)
		}
		if !swapped {
			slog.WarnContext(ctx, "Status changed concurrently, retrying", "op", op, "id", id, "attempt", attempt+1)
			continue
		}

		from := it.Status
		it.Status = target
		slog.InfoContext(ctx, "Installment status changed", "op", op, "id", id, "from", from, "to", target)

		if s.publisher != nil {
			if err := s.publisher.PublishStatusChanged(ctx, it, from); err != nil {
				slog.ErrorContext(ctx, "Failed to publish status event", "id", id, "error", err)
			}
		}
		return TransitionResult{Found: true, Changed: true, Installment: it}, nil
	}
	return TransitionResult{Found: true}, fmt.Errorf("%w: %s: installment %d kept changing", core.ErrConflict, op, id)
}

func (s *SeriesService) Get(ctx context.Context, id int64) (core.Installment, error) {
	return s.store.FindByID(ctx, id)
}

// Series returns every installment of seriesID ordered by number.
func (s *SeriesService) Series(ctx context.Context, seriesID string) ([]core.Installment, error) {
	return s.store.FindBySeries(ctx, seriesID)
}

// Update replaces the editable fields of an installment. The category must
// belong to the same transaction type as the installment, and an empty
// status keeps the stored one.
func (s *SeriesService) Update(ctx context.Context, it core.Installment) (core.Installment, error) {
	current, err := s.store.FindByID(ctx, it.ID)
	if err != nil {
		return core.Installment{}, err
	}
	if it.Status == "" {
		it.Status = current.Status
	}
	if err := it.Validate(); err != nil {
		return core.Installment{}, err
	}
	if err := core.CheckStatusForType(it.Status, it.Type); err != nil {
		return core.Installment{}, err
	}
	if err := s.checkReferences(ctx, it.CategoryID, it.PaymentMethodID, it.Type); err != nil {
		return core.Installment{}, err
	}

	// series membership is not editable
	it.SeriesID = current.SeriesID
	it.InstallmentNumber = current.InstallmentNumber
	it.InstallmentTotal = current.InstallmentTotal

	updated, err := s.store.Update(ctx, it)
	if err != nil {
		return core.Installment{}, fmt.Errorf("update installment: %w", err)
	}
	slog.InfoContext(ctx, "Installment updated", "id", it.ID, "series_id", it.SeriesID)
	return updated, nil
}

func (s *SeriesService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Installment deleted", "id", id)
	return nil
}

// List returns one page of installments matching f.
func (s *SeriesService) List(ctx context.Context, f core.ListFilter) (core.Page, error) {
	f, err := f.Normalize()
	if err != nil {
		return core.Page{}, err
	}
	return s.store.List(ctx, f)
}

// checkReferences verifies the category and payment method exist. When t is
// set the category must also be of type t.
func (s *SeriesService) checkReferences(ctx context.Context, categoryID, paymentMethodID int64, t core.TransactionType) error {
	if s.refs == nil {
		return nil
	}
	cat, err := s.refs.FindCategory(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: category %d does not exist", core.ErrInvalidRequest, categoryID)
	}
	if err != nil {
		return fmt.Errorf("load category: %w", err)
	}
	if t != "" && cat.Type != t {
		return fmt.Errorf("%w: transaction type %s must match category type %s", core.ErrInvalidRequest, t, cat.Type)
	}

	if _, err := s.refs.FindPaymentMethod(ctx, paymentMethodID); errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: payment method %d does not exist", core.ErrInvalidRequest, paymentMethodID)
	} else if err != nil {
		return fmt.Errorf("load payment method: %w", err)
	}
	return nil
}
