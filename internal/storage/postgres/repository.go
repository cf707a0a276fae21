// Package postgres implements the record store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"scadenzario/internal/core"
	"scadenzario/internal/storage"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository migrates the database at url and opens a connection pool.
func NewRepository(ctx context.Context, url string) (*Repository, error) {
	if err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InsertMany sends the whole series as one batch inside a transaction.
func (r *Repository) InsertMany(ctx context.Context, items []core.Installment) ([]core.Installment, error) {
	if len(items) == 0 {
		return []core.Installment{}, nil
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	out := make([]core.Installment, len(items))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(`INSERT INTO installments (description, amount_cents, date, type, status,
				category_id, payment_method_id, series_id, installment_number, installment_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id, created_at, updated_at`,
				it.Description, it.Amount.Cents, it.Date.Time, string(it.Type), string(it.Status),
				it.CategoryID, it.PaymentMethodID, it.SeriesID, it.InstallmentNumber, it.InstallmentTotal)
		}

		br := tx.SendBatch(ctx, batch)
		for i, it := range items {
			if err := br.QueryRow().Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt); err != nil {
				br.Close()
				return classify("insert installment", err)
			}
			out[i] = it
		}
		return br.Close()
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: insert series: %v", core.ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Series saved to PostgreSQL", "series_id", out[0].SeriesID, "count", len(out))
	return out, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (core.Installment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+storage.InstallmentColumns+` FROM installments WHERE id = $1`, id)
	return collectOne(rows, err)
}

func (r *Repository) FindBySeries(ctx context.Context, seriesID string) ([]core.Installment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+storage.InstallmentColumns+` FROM installments
		WHERE series_id = $1 ORDER BY installment_number`, seriesID)
	items, err := collect(rows, err)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, core.ErrNotFound
	}
	return items, nil
}

func (r *Repository) FindInstallment(ctx context.Context, seriesID string, number int) (core.Installment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+storage.InstallmentColumns+` FROM installments
		WHERE series_id = $1 AND installment_number = $2`, seriesID, number)
	return collectOne(rows, err)
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status core.Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE installments SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return classify("update status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) CompareAndSwapStatus(ctx context.Context, id int64, expected, next core.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE installments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`, string(next), id, string(expected))
	if err != nil {
		return false, classify("compare and swap status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Update(ctx context.Context, it core.Installment) (core.Installment, error) {
	if err := it.Validate(); err != nil {
		return core.Installment{}, err
	}
	rows, err := r.pool.Query(ctx, `UPDATE installments SET description = $1, amount_cents = $2, date = $3,
		type = $4, status = $5, category_id = $6, payment_method_id = $7, updated_at = now()
		WHERE id = $8 RETURNING `+storage.InstallmentColumns,
		it.Description, it.Amount.Cents, it.Date.Time, string(it.Type), string(it.Status),
		it.CategoryID, it.PaymentMethodID, it.ID)
	return collectOne(rows, err)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM installments WHERE id = $1`, id)
	if err != nil {
		return classify("delete installment", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// List runs the page query and the count query concurrently.
func (r *Repository) List(ctx context.Context, f core.ListFilter) (core.Page, error) {
	where, args := storage.WhereClause(f, storage.Dollar)

	var items []core.Installment
	var total int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n := len(args)
		pageArgs := append(append([]any(nil), args...), f.Limit, f.Offset())
		rows, err := r.pool.Query(gctx, `SELECT `+storage.InstallmentColumns+` FROM installments`+where+
			storage.ListOrder+fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2), pageArgs...)
		items, err = collect(rows, err)
		return err
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM installments`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("%w: count installments: %v", core.ErrPersistence, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Page{}, err
	}
	return core.NewPage(f, items, total), nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, type) VALUES ($1, $2) RETURNING id`,
		c.Name, string(c.Type)).Scan(&c.ID)
	if err != nil {
		return core.Category{}, classify("create category", err)
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type FROM categories
		WHERE $1 = '' OR type = $1 ORDER BY name, id`, string(t))
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %v", core.ErrPersistence, err)
	}
	out, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("%w: scan categories: %v", core.ErrPersistence, err)
	}
	return out, nil
}

func (r *Repository) FindCategory(ctx context.Context, id int64) (core.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type FROM categories WHERE id = $1`, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("%w: find category: %v", core.ErrPersistence, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("%w: find category: %v", core.ErrPersistence, err)
	}
	return c, nil
}

// UpdateCategory keeps the type fixed while installments reference the
// category.
func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $1, type = $2
		WHERE id = $3 AND (type = $2 OR NOT EXISTS (SELECT 1 FROM installments WHERE category_id = $3))`,
		c.Name, string(c.Type), c.ID)
	if err != nil {
		return core.Category{}, classify("update category", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindCategory(ctx, c.ID); err != nil {
			return core.Category{}, err
		}
		return core.Category{}, fmt.Errorf("%w: category %d is in use", core.ErrConflict, c.ID)
	}
	return c, nil
}

func (r *Repository) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO payment_methods (name) VALUES ($1) RETURNING id`, p.Name).Scan(&p.ID)
	if err != nil {
		return core.PaymentMethod{}, classify("create payment method", err)
	}
	return p, nil
}

func (r *Repository) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM payment_methods ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list payment methods: %v", core.ErrPersistence, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[core.PaymentMethod])
	if err != nil {
		return nil, fmt.Errorf("%w: scan payment methods: %v", core.ErrPersistence, err)
	}
	return out, nil
}

func (r *Repository) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE payment_methods SET name = $1 WHERE id = $2`, p.Name, p.ID)
	if err != nil {
		return core.PaymentMethod{}, classify("update payment method", err)
	}
	if tag.RowsAffected() == 0 {
		return core.PaymentMethod{}, core.ErrNotFound
	}
	return p, nil
}

func (r *Repository) FindPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	var p core.PaymentMethod
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM payment_methods WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.PaymentMethod{}, core.ErrNotFound
	}
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("%w: find payment method: %v", core.ErrPersistence, err)
	}
	return p, nil
}

func scanCategory(row pgx.CollectableRow) (core.Category, error) {
	var c core.Category
	var typ string
	if err := row.Scan(&c.ID, &c.Name, &typ); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func scanInstallment(row pgx.CollectableRow) (core.Installment, error) {
	var it core.Installment
	var date time.Time
	var typ, status string
	err := row.Scan(&it.ID, &it.Description, &it.Amount.Cents, &date, &typ, &status, &it.CategoryID,
		&it.PaymentMethodID, &it.SeriesID, &it.InstallmentNumber, &it.InstallmentTotal, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return core.Installment{}, err
	}
	it.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	it.Type = core.TransactionType(typ)
	it.Status = core.Status(status)
	return it, nil
}

func collect(rows pgx.Rows, err error) ([]core.Installment, error) {
	if err != nil {
		return nil, classify("query installments", err)
	}
	items, err := pgx.CollectRows(rows, scanInstallment)
	if err != nil {
		return nil, classify("scan installments", err)
	}
	return items, nil
}

func collectOne(rows pgx.Rows, err error) (core.Installment, error) {
	if err != nil {
		return core.Installment{}, classify("query installment", err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanInstallment)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Installment{}, core.ErrNotFound
	}
	if err != nil {
		return core.Installment{}, classify("scan installment", err)
	}
	return it, nil
}

// classify maps constraint violations onto domain errors.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s: %s", core.ErrConflict, op, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s: unknown category or payment method", core.ErrInvalidRequest, op)
		}
	}
	return fmt.Errorf("%w: %s: %v", core.ErrPersistence, op, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, core.ErrConflict) || errors.Is(err, core.ErrInvalidRequest) || errors.Is(err, core.ErrPersistence)
}
