package storage

import (
	"fmt"
	"strings"

	"scadenzario/internal/core"
)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// QuestionMark is the SQLite placeholder style.
func QuestionMark(int) string { return "?" }

// Dollar is the PostgreSQL placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// InstallmentColumns is the select list shared by the SQL stores.
const InstallmentColumns = `id, description, amount_cents, date, type, status, category_id,
	payment_method_id, series_id, installment_number, installment_total, created_at, updated_at`

// ListOrder is the ordering used by every listing.
const ListOrder = ` ORDER BY date DESC, id ASC`

// WhereClause translates the non-paging criteria of f into a WHERE clause
// and its arguments. Dates are bound as YYYY-MM-DD strings.
func WhereClause(f core.ListFilter, ph Placeholder) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}

	if f.Type != "" {
		add("type = %s", string(f.Type))
	}
	if f.Status != "" {
		add("status = %s", string(f.Status))
	}
	if f.SeriesID != "" {
		add("series_id = %s", f.SeriesID)
	}
	if d := strings.TrimSpace(f.Description); d != "" {
		add(`LOWER(description) LIKE %s ESCAPE '\'`, "%"+escapeLike(strings.ToLower(d))+"%")
	}
	if !f.From.IsZero() {
		add("date >= %s", f.From.String())
	}
	if !f.To.IsZero() {
		add("date <= %s", f.To.String())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
