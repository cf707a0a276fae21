package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"scadenzario/internal/cache"
	"scadenzario/internal/core"
	"scadenzario/internal/records"
)

const (
	referenceCacheSize = 16
	referenceCacheTTL  = 5 * time.Minute
	paymentMethodsKey  = "payment_methods"
)

// ReferenceService serves categories and payment methods, caching the lists.
type ReferenceService struct {
	refs       records.ReferenceStore
	categories *cache.LRUCache[[]core.Category]
	methods    *cache.LRUCache[[]core.PaymentMethod]
}

// NewReferenceService registers its caches with manager when not nil.
func NewReferenceService(refs records.ReferenceStore, manager *cache.Manager) *ReferenceService {
	s := &ReferenceService{
		refs:       refs,
		categories: cache.NewLRUCache[[]core.Category](referenceCacheSize, referenceCacheTTL),
		methods:    cache.NewLRUCache[[]core.PaymentMethod](referenceCacheSize, referenceCacheTTL),
	}
	if manager != nil {
		manager.Register(s.categories)
		manager.Register(s.methods)
	}
	return s
}

// Categories lists categories, optionally restricted to one type.
func (s *ReferenceService) Categories(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	return s.categories.GetOrLoad("categories:"+string(t), func() ([]core.Category, error) {
		return s.refs.ListCategories(ctx, t)
	})
}

func (s *ReferenceService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.refs.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.categories.Clear()
	slog.InfoContext(ctx, "Category created", "id", created.ID, "name", created.Name, "type", created.Type)
	return created, nil
}

// UpdateCategory renames or retypes a category and drops the cached lists.
func (s *ReferenceService) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	updated, err := s.refs.UpdateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.categories.Clear()
	slog.InfoContext(ctx, "Category updated", "id", updated.ID, "name", updated.Name, "type", updated.Type)
	return updated, nil
}

func (s *ReferenceService) PaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	return s.methods.GetOrLoad(paymentMethodsKey, func() ([]core.PaymentMethod, error) {
		return s.refs.ListPaymentMethods(ctx)
	})
}

func (s *ReferenceService) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	created, err := s.refs.CreatePaymentMethod(ctx, p)
	if err != nil {
		return core.PaymentMethod{}, err
	}
	s.methods.Delete(paymentMethodsKey)
	slog.InfoContext(ctx, "Payment method created", "id", created.ID, "name", created.Name)
	return created, nil
}

func (s *ReferenceService) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	updated, err := s.refs.UpdatePaymentMethod(ctx, p)
	if err != nil {
		return core.PaymentMethod{}, err
	}
	s.methods.Delete(paymentMethodsKey)
	slog.InfoContext(ctx, "Payment method updated", "id", updated.ID, "name", updated.Name)
	return updated, nil
}
