package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Expense TransactionType = "EXPENSE"
	Income  TransactionType = "INCOME"
)

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusReceived Status = "RECEIVED"
	StatusCanceled Status = "CANCELED"
)

const maxDescriptionLength = 200

type (
	TransactionType string

	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Installment is one dated, amount-bearing record of a series.
	Installment struct {
		ID                int64
		Description       string
		Amount            Money
		Date              Date
		Type              TransactionType
		Status            Status
		CategoryID        int64
		PaymentMethodID   int64
		SeriesID          string
		InstallmentNumber int
		InstallmentTotal  int
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	Category struct {
		ID   int64
		Name string
		Type TransactionType
	}

	PaymentMethod struct {
		ID   int64
		Name string
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseTransactionType accepts the canonical names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case Expense, Income:
		return t, nil
	case "":
		return "", fmt.Errorf("%w: type is required", ErrInvalidRequest)
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, s)
	}
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

// ParseStatus accepts the canonical names case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusReceived, StatusCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusReceived, StatusCanceled:
		return true
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp. The result is
// truncated to the calendar date in UTC.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: invalid date %q (use YYYY-MM-DD or ISO-8601)", ErrInvalidRequest, s)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Before reports whether d falls on an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.String() < o.String()
}

func (i Installment) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidRequest)
	}
	if len(i.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrInvalidRequest, maxDescriptionLength)
	}
	if !i.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, i.Type)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, i.Status)
	}
	if i.CategoryID <= 0 {
		return fmt.Errorf("%w: categoryId is required", ErrInvalidRequest)
	}
	if i.PaymentMethodID <= 0 {
		return fmt.Errorf("%w: paymentMethodId is required", ErrInvalidRequest)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, c.Type)
	}
	return nil
}

func (p PaymentMethod) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	return nil
}
