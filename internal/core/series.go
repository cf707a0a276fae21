package core

import (
	"fmt"
	"strings"
)

// AmountMode tells how a series amount is interpreted.
type AmountMode int

const (
	// PerInstallment means every installment carries the amount verbatim.
	PerInstallment AmountMode = iota
	// DistributeTotal means the amount is the grand total to split.
	DistributeTotal
)

func (m AmountMode) String() string {
	if m == DistributeTotal {
		return "distribute_total"
	}
	return "per_installment"
}

// SeriesAmount pairs an amount with its interpretation.
type SeriesAmount struct {
	Mode  AmountMode
	Value Money
}

func PerInstallmentAmount(m Money) SeriesAmount {
	return SeriesAmount{Mode: PerInstallment, Value: m}
}

func TotalToDistribute(m Money) SeriesAmount {
	return SeriesAmount{Mode: DistributeTotal, Value: m}
}

// SeriesRequest is a validated request to create a series of installments.
type SeriesRequest struct {
	Description     string
	Type            TransactionType
	Amount          SeriesAmount
	Date            Date
	CategoryID      int64
	PaymentMethodID int64
	Count           int
}

// SeriesSummary describes a persisted multi-installment series.
type SeriesSummary struct {
	SeriesID string
	Count    int
	Total    Money
}

func (r SeriesRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidRequest)
	}
	if len(r.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrInvalidRequest, maxDescriptionLength)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	}
	if err := r.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.CategoryID <= 0 {
		return fmt.Errorf("%w: categoryId is required", ErrInvalidRequest)
	}
	if r.PaymentMethodID <= 0 {
		return fmt.Errorf("%w: paymentMethodId is required", ErrInvalidRequest)
	}
	return nil
}

// BuildSeries expands r into its installment records, all tagged with
// seriesID and starting PENDING. Count values below 1 are treated as 1.
func BuildSeries(r SeriesRequest, seriesID string) ([]Installment, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(seriesID) == "" {
		return nil, fmt.Errorf("%w: empty series id", ErrInvalidRequest)
	}

	n := r.Count
	if n < 1 {
		n = 1
	}

	// the series total must stay representable in cents
	if r.Amount.Mode == PerInstallment {
		if _, err := r.Amount.Value.Times(n); err != nil {
			return nil, err
		}
	}

	var amounts []Money
	if r.Amount.Mode == DistributeTotal {
		amounts = SplitInstallments(r.Amount.Value, n)
	} else {
		amounts = make([]Money, n)
		for i := range amounts {
			amounts[i] = r.Amount.Value
		}
	}
	dates := DueDates(r.Date, n)

	out := make([]Installment, n)
	for i := range out {
		out[i] = Installment{
			Description:       r.Description,
			Amount:            amounts[i],
			Date:              dates[i],
			Type:              r.Type,
			Status:            StatusPending,
			CategoryID:        r.CategoryID,
			PaymentMethodID:   r.PaymentMethodID,
			SeriesID:          seriesID,
			InstallmentNumber: i + 1,
			InstallmentTotal:  n,
		}
	}
	return out, nil
}

// Summarize returns the summary of a built series.
func Summarize(items []Installment) SeriesSummary {
	if len(items) == 0 {
		return SeriesSummary{}
	}
	total := Money{}
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return SeriesSummary{SeriesID: items[0].SeriesID, Count: len(items), Total: total}
}
