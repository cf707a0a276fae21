package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scadenzario/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func buildSeries(t *testing.T, id string, amount core.SeriesAmount, n int) []core.Installment {
	t.Helper()
	items, err := core.BuildSeries(core.SeriesRequest{
		Description:     "Rent",
		Type:            core.Expense,
		Amount:          amount,
		Date:            core.NewDate(2024, 1, 31),
		CategoryID:      1,
		PaymentMethodID: 1,
		Count:           n,
	}, id)
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	return items
}

func TestMigrationsSeedReferenceData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cats, err := repo.ListCategories(ctx, core.Expense)
	if err != nil || len(cats) != 3 || cats[0].Name != "Casa" {
		t.Fatalf("unexpected categories %v err=%v", cats, err)
	}
	methods, err := repo.ListPaymentMethods(ctx)
	if err != nil || len(methods) != 3 {
		t.Fatalf("unexpected payment methods %v err=%v", methods, err)
	}

	dsn := DSN(filepath.Join(t.TempDir(), "again.db"))
	for i := 0; i < 2; i++ {
		if err := RunMigrations(dsn); err != nil {
			t.Fatalf("migration run %d: %v", i, err)
		}
	}
}

func TestInsertManyAndLookups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved, err := repo.InsertMany(ctx, buildSeries(t, "s-1", core.PerInstallmentAmount(core.Money{Cents: 120000}), 3))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(saved) != 3 || saved[0].ID == 0 || saved[2].ID <= saved[0].ID {
		t.Fatalf("unexpected ids: %+v", saved)
	}

	rows, err := repo.FindBySeries(ctx, "s-1")
	if err != nil {
		t.Fatalf("find by series: %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31"}
	for i, r := range rows {
		if r.Date.String() != want[i] || r.Amount.Cents != 120000 || r.InstallmentNumber != i+1 || r.InstallmentTotal != 3 {
			t.Fatalf("unexpected row %d: %+v", i, r)
		}
		if r.Status != core.StatusPending || r.CreatedAt.IsZero() {
			t.Fatalf("unexpected row %d state: %+v", i, r)
		}
	}

	first, err := repo.FindInstallment(ctx, "s-1", 1)
	if err != nil || first.ID != saved[0].ID {
		t.Fatalf("find installment: %+v err=%v", first, err)
	}
	if _, err := repo.FindByID(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.FindBySeries(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertManyRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	items := buildSeries(t, "s-2", core.TotalToDistribute(core.Money{Cents: 10000}), 3)
	items[2].PaymentMethodID = 999 // foreign key violation on the last row
	if _, err := repo.InsertMany(ctx, items); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := repo.FindBySeries(ctx, "s-2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("partial series visible after rollback: %v", err)
	}

	ok := buildSeries(t, "s-3", core.TotalToDistribute(core.Money{Cents: 10000}), 2)
	if _, err := repo.InsertMany(ctx, ok); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.InsertMany(ctx, ok); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStatusWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	saved, _ := repo.InsertMany(ctx, buildSeries(t, "s-4", core.PerInstallmentAmount(core.Money{Cents: 100}), 1))
	id := saved[0].ID

	swapped, err := repo.CompareAndSwapStatus(ctx, id, core.StatusPending, core.StatusPaid)
	if err != nil || !swapped {
		t.Fatalf("expected swap: %v %v", swapped, err)
	}
	swapped, err = repo.CompareAndSwapStatus(ctx, id, core.StatusPending, core.StatusCanceled)
	if err != nil || swapped {
		t.Fatalf("expected lost swap: %v %v", swapped, err)
	}

	if err := repo.UpdateStatus(ctx, id, core.StatusCanceled); err != nil {
		t.Fatalf("update status: %v", err)
	}
	it, _ := repo.FindByID(ctx, id)
	if it.Status != core.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", it.Status)
	}
	if err := repo.UpdateStatus(ctx, 9999, core.StatusPaid); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	saved, _ := repo.InsertMany(ctx, buildSeries(t, "s-5", core.PerInstallmentAmount(core.Money{Cents: 100}), 1))

	it := saved[0]
	it.Description = "Affitto"
	it.Amount = core.Money{Cents: 250}
	it.Date = core.NewDate(2024, 6, 1)
	updated, err := repo.Update(ctx, it)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != "Affitto" || updated.Amount.Cents != 250 || updated.Date.String() != "2024-06-01" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	it.ID = 9999
	if _, err := repo.Update(ctx, it); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, saved[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, saved[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.InsertMany(ctx, buildSeries(t, "s-6", core.TotalToDistribute(core.Money{Cents: 120000}), 12)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	income, err := core.BuildSeries(core.SeriesRequest{
		Description:     "Stipendio Marzo",
		Type:            core.Income,
		Amount:          core.PerInstallmentAmount(core.Money{Cents: 250000}),
		Date:            core.NewDate(2024, 3, 27),
		CategoryID:      4,
		PaymentMethodID: 1,
		Count:           1,
	}, "s-7")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := repo.InsertMany(ctx, income); err != nil {
		t.Fatalf("insert income: %v", err)
	}

	f, _ := core.ListFilter{Limit: 5, Page: 1}.Normalize()
	page, err := repo.List(ctx, f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 13 || page.TotalPages != 3 || len(page.Items) != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Date.String() != "2024-12-31" {
		t.Fatalf("expected newest first, got %s", page.Items[0].Date)
	}

	f, _ = core.ListFilter{Type: core.Income, Description: "STIPENDIO"}.Normalize()
	page, _ = repo.List(ctx, f)
	if page.Total != 1 || page.Items[0].SeriesID != "s-7" {
		t.Fatalf("unexpected income page: %+v", page)
	}

	f, _ = core.ListFilter{SeriesID: "s-6", From: core.NewDate(2024, 3, 1), To: core.NewDate(2024, 3, 31)}.Normalize()
	page, _ = repo.List(ctx, f)
	if page.Total != 1 || page.Items[0].InstallmentNumber != 3 {
		t.Fatalf("unexpected range page: %+v", page)
	}
}

func TestReferenceConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateCategory(ctx, core.Category{Name: "Casa", Type: core.Expense}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	c, err := repo.CreateCategory(ctx, core.Category{Name: "Regali", Type: core.Income})
	if err != nil || c.ID == 0 {
		t.Fatalf("create category: %+v err=%v", c, err)
	}
	found, err := repo.FindCategory(ctx, c.ID)
	if err != nil || found != c {
		t.Fatalf("find category: %+v err=%v", found, err)
	}

	if _, err := repo.CreatePaymentMethod(ctx, core.PaymentMethod{Name: "Carta"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	p, err := repo.CreatePaymentMethod(ctx, core.PaymentMethod{Name: "PayPal"})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	if got, err := repo.FindPaymentMethod(ctx, p.ID); err != nil || got.Name != "PayPal" {
		t.Fatalf("find payment method: %+v err=%v", got, err)
	}
	if _, err := repo.FindCategory(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertManyEmpty(t *testing.T) {
	repo := newTestRepo(t)
	out, err := repo.InsertMany(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("expected empty result, got %d rows err=%v", len(out), err)
	}
}

func TestCorruptTimestampIsPersistenceError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	saved, _ := repo.InsertMany(ctx, buildSeries(t, "s-ts", core.PerInstallmentAmount(core.Money{Cents: 100}), 1))
	id := saved[0].ID

	if _, err := repo.db.ExecContext(ctx, `UPDATE installments SET updated_at = 'yesterday' WHERE id = ?`, id); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, err := repo.FindByID(ctx, id); !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestUpdateReferenceData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.UpdateCategory(ctx, core.Category{ID: 2, Name: "Spesa", Type: core.Expense})
	if err != nil || c.Name != "Spesa" {
		t.Fatalf("update category: %+v err=%v", c, err)
	}
	if found, _ := repo.FindCategory(ctx, 2); found.Name != "Spesa" {
		t.Fatalf("rename not stored: %+v", found)
	}
	if _, err := repo.UpdateCategory(ctx, core.Category{ID: 2, Name: "Casa", Type: core.Expense}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}
	if _, err := repo.UpdateCategory(ctx, core.Category{ID: 9999, Name: "X", Type: core.Expense}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := repo.InsertMany(ctx, buildSeries(t, "s-ref", core.PerInstallmentAmount(core.Money{Cents: 100}), 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.UpdateCategory(ctx, core.Category{ID: 1, Name: "Casa", Type: core.Income}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("retyping a used category should conflict, got %v", err)
	}
	if found, _ := repo.FindCategory(ctx, 1); found.Type != core.Expense {
		t.Fatalf("type changed despite conflict: %+v", found)
	}
	if _, err := repo.UpdateCategory(ctx, core.Category{ID: 1, Name: "Abitazione", Type: core.Expense}); err != nil {
		t.Fatalf("renaming a used category should succeed: %v", err)
	}

	if _, err := repo.UpdatePaymentMethod(ctx, core.PaymentMethod{ID: 1, Name: "Carta"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := repo.UpdatePaymentMethod(ctx, core.PaymentMethod{ID: 9999, Name: "Nuovo"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p, err := repo.UpdatePaymentMethod(ctx, core.PaymentMethod{ID: 1, Name: "SEPA"})
	if err != nil {
		t.Fatalf("update payment method: %v", err)
	}
	if got, _ := repo.FindPaymentMethod(ctx, p.ID); got.Name != "SEPA" {
		t.Fatalf("rename not stored: %+v", got)
	}
}
