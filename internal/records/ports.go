// Package records defines the persistence ports consumed by the services.
package records

import (
	"context"

	"scadenzario/internal/core"
)

// Ports for outbound adapters.
type (
	// Store persists installment records.
	//
	// InsertMany is atomic: either every record of the slice is stored or
	// none is. Lookups return core.ErrNotFound when nothing matches.
	Store interface {
		InsertMany(ctx context.Context, items []core.Installment) ([]core.Installment, error)
		FindByID(ctx context.Context, id int64) (core.Installment, error)
		// FindBySeries returns the installments of a series ordered by number.
		FindBySeries(ctx context.Context, seriesID string) ([]core.Installment, error)
		FindInstallment(ctx context.Context, seriesID string, number int) (core.Installment, error)
		UpdateStatus(ctx context.Context, id int64, status core.Status) error
		// CompareAndSwapStatus sets status to next only while it still equals
		// expected. It reports whether the write happened.
		CompareAndSwapStatus(ctx context.Context, id int64, expected, next core.Status) (bool, error)
		Update(ctx context.Context, it core.Installment) (core.Installment, error)
		Delete(ctx context.Context, id int64) error
		// List expects a normalized filter.
		List(ctx context.Context, f core.ListFilter) (core.Page, error)
	}

	// ReferenceStore persists categories and payment methods.
	ReferenceStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// ListCategories returns every category, or only those of type t
		// when t is not empty, ordered by name.
		ListCategories(ctx context.Context, t core.TransactionType) ([]core.Category, error)
		FindCategory(ctx context.Context, id int64) (core.Category, error)
		// UpdateCategory renames or retypes a category. Changing the type of a
		// category that installments still use fails with core.ErrConflict.
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error)
		ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error)
		FindPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error)
		UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error)
	}

	// Pinger is implemented by stores backed by a connection.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
