// Package storage implements the record store on SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"scadenzario/internal/core"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// DSN returns the connection string for dbPath with foreign keys enforced.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertMany stores a whole series inside one transaction.
func (r *SQLiteRepository) InsertMany(ctx context.Context, items []core.Installment) ([]core.Installment, error) {
	if len(items) == 0 {
		return []core.Installment{}, nil
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO installments (description, amount_cents, date, type, status,
		category_id, payment_method_id, series_id, installment_number, installment_total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare insert: %v", core.ErrPersistence, err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	stamp := now.Format(timeLayout)
	out := make([]core.Installment, len(items))
	for i, it := range items {
		res, err := stmt.ExecContext(ctx, it.Description, it.Amount.Cents, it.Date.String(), string(it.Type),
			string(it.Status), it.CategoryID, it.PaymentMethodID, it.SeriesID, it.InstallmentNumber,
			it.InstallmentTotal, stamp, stamp)
		if err != nil {
			return nil, classify("insert installment", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: last insert id: %v", core.ErrPersistence, err)
		}
		it.ID = id
		it.CreatedAt = now
		it.UpdatedAt = now
		out[i] = it
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", core.ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Series saved to SQLite",
		"series_id", firstSeriesID(out),
		"count", len(out))

	return out, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (core.Installment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+InstallmentColumns+` FROM installments WHERE id = ?`, id)
	return scanInstallment(row)
}

func (r *SQLiteRepository) FindBySeries(ctx context.Context, seriesID string) ([]core.Installment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+InstallmentColumns+` FROM installments
		WHERE series_id = ? ORDER BY installment_number`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("%w: find series: %v", core.ErrPersistence, err)
	}
	items, err := scanInstallments(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, core.ErrNotFound
	}
	return items, nil
}

func (r *SQLiteRepository) FindInstallment(ctx context.Context, seriesID string, number int) (core.Installment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+InstallmentColumns+` FROM installments
		WHERE series_id = ? AND installment_number = ?`, seriesID, number)
	return scanInstallment(row)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status core.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE installments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), r.now().UTC().Format(timeLayout), id)
	if err != nil {
		return classify("update status", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) CompareAndSwapStatus(ctx context.Context, id int64, expected, next core.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE installments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), r.now().UTC().Format(timeLayout), id, string(expected))
	if err != nil {
		return false, classify("compare and swap status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", core.ErrPersistence, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, it core.Installment) (core.Installment, error) {
	if err := it.Validate(); err != nil {
		return core.Installment{}, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE installments SET description = ?, amount_cents = ?, date = ?,
		type = ?, status = ?, category_id = ?, payment_method_id = ?, updated_at = ? WHERE id = ?`,
		it.Description, it.Amount.Cents, it.Date.String(), string(it.Type), string(it.Status),
		it.CategoryID, it.PaymentMethodID, r.now().UTC().Format(timeLayout), it.ID)
	if err != nil {
		return core.Installment{}, classify("update installment", err)
	}
	if err := requireAffected(res); err != nil {
		return core.Installment{}, err
	}
	return r.FindByID(ctx, it.ID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM installments WHERE id = ?`, id)
	if err != nil {
		return classify("delete installment", err)
	}
	return requireAffected(res)
}

// List runs the page query and the count query concurrently.
func (r *SQLiteRepository) List(ctx context.Context, f core.ListFilter) (core.Page, error) {
	where, args := WhereClause(f, QuestionMark)

	var items []core.Installment
	var total int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pageArgs := append(append([]any(nil), args...), f.Limit, f.Offset())
		rows, err := r.db.QueryContext(gctx, `SELECT `+InstallmentColumns+` FROM installments`+where+ListOrder+
			` LIMIT ? OFFSET ?`, pageArgs...)
		if err != nil {
			return fmt.Errorf("%w: list installments: %v", core.ErrPersistence, err)
		}
		items, err = scanInstallments(rows)
		return err
	})
	g.Go(func() error {
		if err := r.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM installments`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("%w: count installments: %v", core.ErrPersistence, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Page{}, err
	}

	return core.NewPage(f, items, total), nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO categories (name, type) VALUES (?, ?)`, c.Name, string(c.Type))
	if err != nil {
		return core.Category{}, classify("create category", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, fmt.Errorf("%w: last insert id: %v", core.ErrPersistence, err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	q := `SELECT id, name, type FROM categories`
	var args []any
	if t != "" {
		q += ` WHERE type = ?`
		args = append(args, string(t))
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("%w: scan category: %v", core.ErrPersistence, err)
		}
		c.Type = core.TransactionType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FindCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	var typ string
	err := r.db.QueryRowContext(ctx, `SELECT id, name, type FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("%w: find category: %v", core.ErrPersistence, err)
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

// UpdateCategory keeps the type fixed while installments reference the
// category.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE categories SET name = ?, type = ?
		WHERE id = ? AND (type = ? OR NOT EXISTS (SELECT 1 FROM installments WHERE category_id = ?))`,
		c.Name, string(c.Type), c.ID, string(c.Type), c.ID)
	if err != nil {
		return core.Category{}, classify("update category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Category{}, fmt.Errorf("%w: rows affected: %v", core.ErrPersistence, err)
	}
	if n == 0 {
		if _, err := r.FindCategory(ctx, c.ID); err != nil {
			return core.Category{}, err
		}
		return core.Category{}, fmt.Errorf("%w: category %d is in use", core.ErrConflict, c.ID)
	}
	return c, nil
}

func (r *SQLiteRepository) CreatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO payment_methods (name) VALUES (?)`, p.Name)
	if err != nil {
		return core.PaymentMethod{}, classify("create payment method", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("%w: last insert id: %v", core.ErrPersistence, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM payment_methods ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list payment methods: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	out := []core.PaymentMethod{}
	for rows.Next() {
		var p core.PaymentMethod
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("%w: scan payment method: %v", core.ErrPersistence, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE payment_methods SET name = ? WHERE id = ?`, p.Name, p.ID)
	if err != nil {
		return core.PaymentMethod{}, classify("update payment method", err)
	}
	if err := requireAffected(res); err != nil {
		return core.PaymentMethod{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) FindPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	var p core.PaymentMethod
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM payment_methods WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PaymentMethod{}, core.ErrNotFound
	}
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("%w: find payment method: %v", core.ErrPersistence, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstallment(row scanner) (core.Installment, error) {
	var it core.Installment
	var date, typ, status, createdAt, updatedAt string
	err := row.Scan(&it.ID, &it.Description, &it.Amount.Cents, &date, &typ, &status, &it.CategoryID,
		&it.PaymentMethodID, &it.SeriesID, &it.InstallmentNumber, &it.InstallmentTotal, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Installment{}, core.ErrNotFound
	}
	if err != nil {
		return core.Installment{}, fmt.Errorf("%w: scan installment: %v", core.ErrPersistence, err)
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Installment{}, fmt.Errorf("%w: stored date %q: %v", core.ErrPersistence, date, err)
	}
	it.Date = d
	it.Type = core.TransactionType(typ)
	it.Status = core.Status(status)
	if it.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Installment{}, fmt.Errorf("%w: stored created_at %q: %v", core.ErrPersistence, createdAt, err)
	}
	if it.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return core.Installment{}, fmt.Errorf("%w: stored updated_at %q: %v", core.ErrPersistence, updatedAt, err)
	}
	return it, nil
}

func scanInstallments(rows *sql.Rows) ([]core.Installment, error) {
	defer rows.Close()
	out := []core.Installment{}
	for rows.Next() {
		it, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate installments: %v", core.ErrPersistence, err)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", core.ErrPersistence, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// classify maps constraint violations onto domain errors.
func classify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s: %v", core.ErrConflict, op, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s: unknown category or payment method", core.ErrInvalidRequest, op)
		}
	}
	return fmt.Errorf("%w: %s: %v", core.ErrPersistence, op, err)
}

func firstSeriesID(items []core.Installment) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].SeriesID
}
