package core

import (
	"fmt"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListFilter selects installments for listing. Zero values mean "any".
type ListFilter struct {
	Type        TransactionType
	Status      Status
	Description string // case-insensitive substring
	From        Date   // inclusive
	To          Date   // inclusive
	SeriesID    string
	Page        int
	Limit       int
}

// Page is one page of a filtered listing.
type Page struct {
	Items      []Installment
	Total      int
	TotalPages int
	Page       int
	PageSize   int
}

// Normalize applies paging defaults and rejects inconsistent filters.
func (f ListFilter) Normalize() (ListFilter, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, f.Type)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRequest, f.From, f.To)
	}
	return f, nil
}

// Offset returns the number of rows to skip for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// NewPage assembles a page from a normalized filter and its total count.
func NewPage(f ListFilter, items []Installment, total int) Page {
	// an empty result still has one (empty) page
	pages := 1
	if total > f.Limit {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if items == nil {
		items = []Installment{}
	}
	return Page{Items: items, Total: total, TotalPages: pages, Page: f.Page, PageSize: f.Limit}
}

// Matches reports whether it satisfies every criterion of f except paging.
func (f ListFilter) Matches(it Installment) bool {
	if f.Type != "" && it.Type != f.Type {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.SeriesID != "" && it.SeriesID != f.SeriesID {
		return false
	}
	if f.Description != "" && !strings.Contains(strings.ToLower(it.Description), strings.ToLower(f.Description)) {
		return false
	}
	if !f.From.IsZero() && it.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && f.To.Before(it.Date) {
		return false
	}
	return true
}
