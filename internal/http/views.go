package http

import (
	"time"

	"scadenzario/internal/core"
	"scadenzario/internal/services"
)

type transactionView struct {
	ID                int64      `json:"id"`
	Description       string     `json:"description"`
	Amount            core.Money `json:"amount"`
	Date              string     `json:"date"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	CategoryID        int64      `json:"categoryId"`
	PaymentMethodID   int64      `json:"paymentMethodId"`
	SeriesID          string     `json:"seriesId"`
	InstallmentNumber int        `json:"installmentNumber"`
	InstallmentTotal  int        `json:"installmentTotal"`
	CreatedAt         string     `json:"createdAt,omitempty"`
	UpdatedAt         string     `json:"updatedAt,omitempty"`
}

func newTransactionView(it core.Installment) transactionView {
	return transactionView{
		ID:                it.ID,
		Description:       it.Description,
		Amount:            it.Amount,
		Date:              it.Date.String(),
		Type:              string(it.Type),
		Status:            string(it.Status),
		CategoryID:        it.CategoryID,
		PaymentMethodID:   it.PaymentMethodID,
		SeriesID:          it.SeriesID,
		InstallmentNumber: it.InstallmentNumber,
		InstallmentTotal:  it.InstallmentTotal,
		CreatedAt:         timestamp(it.CreatedAt),
		UpdatedAt:         timestamp(it.UpdatedAt),
	}
}

func newTransactionViews(items []core.Installment) []transactionView {
	out := make([]transactionView, len(items))
	for i, it := range items {
		out[i] = newTransactionView(it)
	}
	return out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type seriesSummaryView struct {
	SeriesID string     `json:"seriesId"`
	Count    int        `json:"count"`
	Total    core.Money `json:"total"`
}

type pageView struct {
	Items      []transactionView `json:"items"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

func newPageView(p core.Page) pageView {
	return pageView{
		Items:      newTransactionViews(p.Items),
		Total:      p.Total,
		TotalPages: p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}
}

// transitionView is the body of settle and cancel responses.
type transitionView struct {
	Found       bool             `json:"found"`
	Changed     bool             `json:"changed"`
	Status      string           `json:"status,omitempty"`
	Transaction *transactionView `json:"transaction,omitempty"`
}

func newTransitionView(res services.TransitionResult) transitionView {
	if !res.Found {
		return transitionView{}
	}
	tx := newTransactionView(res.Installment)
	return transitionView{
		Found:       true,
		Changed:     res.Changed,
		Status:      string(res.Installment.Status),
		Transaction: &tx,
	}
}

type categoryView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type paymentMethodView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newCategoryViews(cats []core.Category) []categoryView {
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = categoryView{ID: c.ID, Name: c.Name, Type: string(c.Type)}
	}
	return out
}

func newPaymentMethodViews(methods []core.PaymentMethod) []paymentMethodView {
	out := make([]paymentMethodView, len(methods))
	for i, m := range methods {
		out[i] = paymentMethodView{ID: m.ID, Name: m.Name}
	}
	return out
}
