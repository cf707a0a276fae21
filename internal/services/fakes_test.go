package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scadenzario/internal/core"
	"scadenzario/internal/records"
	"scadenzario/internal/records/memory"
)

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("series-%d", g.n)
}

type recordingPublisher struct {
	mu       sync.Mutex
	created  []core.SeriesSummary
	statuses []core.Installment
	overdue  []core.Installment
	fail     bool
}

func (p *recordingPublisher) PublishSeriesCreated(_ context.Context, sum core.SeriesSummary, _ core.Installment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.created = append(p.created, sum)
	return nil
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, it core.Installment, _ core.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.statuses = append(p.statuses, it)
	return nil
}

func (p *recordingPublisher) PublishOverdue(_ context.Context, it core.Installment, _ core.Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.overdue = append(p.overdue, it)
	return nil
}

// racingStore loses the first compare-and-swap, as if another writer got
// there first with the given status.
type racingStore struct {
	records.Store
	mu       sync.Mutex
	raced    bool
	sneakyTo core.Status
}

func (s *racingStore) CompareAndSwapStatus(ctx context.Context, id int64, expected, next core.Status) (bool, error) {
	s.mu.Lock()
	first := !s.raced
	s.raced = true
	s.mu.Unlock()
	if first {
		if err := s.Store.UpdateStatus(ctx, id, s.sneakyTo); err != nil {
			return false, err
		}
		return false, nil
	}
	return s.Store.CompareAndSwapStatus(ctx, id, expected, next)
}

func newMemory() *memory.Store {
	return memory.New(memory.DefaultCategories(), memory.DefaultPaymentMethods())
}
