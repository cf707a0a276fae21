package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"scadenzario/internal/core"
)

// MaxRepeatCount caps the number of installments of one series.
const MaxRepeatCount = 360

// CreateSeriesCommand is the loosely typed creation request received from a
// transport. Numeric fields accept numbers or numeric strings.
type CreateSeriesCommand struct {
	Description     string `json:"description"`
	Type            string `json:"type"`
	Amount          any    `json:"amount"`
	Date            string `json:"date"`
	CategoryID      any    `json:"categoryId"`
	PaymentMethodID any    `json:"paymentMethodId"`
	RepeatCount     any    `json:"repeatCount,omitempty"`
	DistributeTotal bool   `json:"distributeTotal,omitempty"`
}

// ToRequest validates the command and converts it to a core.SeriesRequest.
func (c CreateSeriesCommand) ToRequest() (core.SeriesRequest, error) {
	if strings.TrimSpace(c.Description) == "" {
		return core.SeriesRequest{}, fmt.Errorf("%w: description is required", core.ErrInvalidRequest)
	}
	if isMissing(c.Amount) {
		return core.SeriesRequest{}, fmt.Errorf("%w: amount is required", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(c.Date) == "" {
		return core.SeriesRequest{}, fmt.Errorf("%w: date is required", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(c.Type) == "" {
		return core.SeriesRequest{}, fmt.Errorf("%w: type is required", core.ErrInvalidRequest)
	}
	if isMissing(c.CategoryID) {
		return core.SeriesRequest{}, fmt.Errorf("%w: categoryId is required", core.ErrInvalidRequest)
	}
	if isMissing(c.PaymentMethodID) {
		return core.SeriesRequest{}, fmt.Errorf("%w: paymentMethodId is required", core.ErrInvalidRequest)
	}

	date, err := core.ParseDate(c.Date)
	if err != nil {
		return core.SeriesRequest{}, err
	}
	typ, err := core.ParseTransactionType(c.Type)
	if err != nil {
		return core.SeriesRequest{}, err
	}
	amount, err := core.NormalizeAmount(c.Amount)
	if err != nil {
		return core.SeriesRequest{}, err
	}
	categoryID, err := ParseID("categoryId", c.CategoryID)
	if err != nil {
		return core.SeriesRequest{}, err
	}
	paymentMethodID, err := ParseID("paymentMethodId", c.PaymentMethodID)
	if err != nil {
		return core.SeriesRequest{}, err
	}
	count, err := parseRepeatCount(c.RepeatCount)
	if err != nil {
		return core.SeriesRequest{}, err
	}

	seriesAmount := core.PerInstallmentAmount(amount)
	if c.DistributeTotal {
		seriesAmount = core.TotalToDistribute(amount)
	}

	return core.SeriesRequest{
		Description:     strings.TrimSpace(c.Description),
		Type:            typ,
		Amount:          seriesAmount,
		Date:            date,
		CategoryID:      categoryID,
		PaymentMethodID: paymentMethodID,
		Count:           count,
	}, nil
}

// UpdateInstallmentCommand replaces every editable field of an installment.
type UpdateInstallmentCommand struct {
	Description     string `json:"description"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Amount          any    `json:"amount"`
	Date            string `json:"date"`
	CategoryID      any    `json:"categoryId"`
	PaymentMethodID any    `json:"paymentMethodId"`
}

// ToInstallment converts the command into the installment with id. The
// result is validated by SeriesService.Update once the status is resolved.
func (c UpdateInstallmentCommand) ToInstallment(id int64) (core.Installment, error) {
	if isMissing(c.Amount) {
		return core.Installment{}, fmt.Errorf("%w: amount is required", core.ErrInvalidRequest)
	}
	date, err := core.ParseDate(c.Date)
	if err != nil {
		return core.Installment{}, err
	}
	typ, err := core.ParseTransactionType(c.Type)
	if err != nil {
		return core.Installment{}, err
	}
	// an empty status keeps the stored one
	var status core.Status
	if strings.TrimSpace(c.Status) != "" {
		if status, err = core.ParseStatus(c.Status); err != nil {
			return core.Installment{}, err
		}
	}
	amount, err := core.NormalizeAmount(c.Amount)
	if err != nil {
		return core.Installment{}, err
	}
	categoryID, err := ParseID("categoryId", c.CategoryID)
	if err != nil {
		return core.Installment{}, err
	}
	paymentMethodID, err := ParseID("paymentMethodId", c.PaymentMethodID)
	if err != nil {
		return core.Installment{}, err
	}

	it := core.Installment{
		ID:              id,
		Description:     strings.TrimSpace(c.Description),
		Amount:          amount,
		Date:            date,
		Type:            typ,
		Status:          status,
		CategoryID:      categoryID,
		PaymentMethodID: paymentMethodID,
	}
	return it, nil
}

// ParseID converts a numeric reference received as a number or a string.
func ParseID(field string, v any) (int64, error) {
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be numeric", core.ErrInvalidRequest, field)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", core.ErrInvalidRequest, field)
	}
	return n, nil
}

func parseRepeatCount(v any) (int, error) {
	if isMissing(v) {
		return 1, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%w: repeatCount must be a whole number", core.ErrInvalidRequest)
	}
	if n > MaxRepeatCount {
		return 0, fmt.Errorf("%w: repeatCount must not exceed %d", core.ErrInvalidRequest, MaxRepeatCount)
	}
	if n < 1 {
		n = 1
	}
	return int(n), nil
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val != math.Trunc(val) || val < math.MinInt64 || val >= -math.MinInt64 {
			return 0, false
		}
		return int64(val), true
	case json.Number:
		return toInt64(val.String())
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return toInt64(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
