package amqp

import (
	"encoding/json"
	"time"

	"scadenzario/internal/core"
)

// Routing keys of the published events.
const (
	RoutingSeriesCreated       = "series.created"
	RoutingInstallmentSettled  = "installment.settled"
	RoutingInstallmentCanceled = "installment.canceled"
	RoutingInstallmentOverdue  = "installment.overdue"
)

// RoutingKeys lists every key the queue is bound to.
var RoutingKeys = []string{
	RoutingSeriesCreated,
	RoutingInstallmentSettled,
	RoutingInstallmentCanceled,
	RoutingInstallmentOverdue,
}

// SeriesCreatedMessage announces a freshly persisted series.
type SeriesCreatedMessage struct {
	SeriesID     string    `json:"seriesId"`
	Count        int       `json:"count"`
	TotalCents   int64     `json:"totalCents"`
	Type         string    `json:"type"`
	FirstDueDate string    `json:"firstDueDate"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewSeriesCreatedMessage(sum core.SeriesSummary, first core.Installment) *SeriesCreatedMessage {
	return &SeriesCreatedMessage{
		SeriesID:     sum.SeriesID,
		Count:        sum.Count,
		TotalCents:   sum.Total.Cents,
		Type:         string(first.Type),
		FirstDueDate: first.Date.String(),
		Timestamp:    time.Now(),
	}
}

// InstallmentStatusMessage carries a settle or cancel transition.
type InstallmentStatusMessage struct {
	ID                int64     `json:"id"`
	SeriesID          string    `json:"seriesId"`
	InstallmentNumber int       `json:"installmentNumber"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewInstallmentStatusMessage(it core.Installment, from core.Status) *InstallmentStatusMessage {
	return &InstallmentStatusMessage{
		ID:                it.ID,
		SeriesID:          it.SeriesID,
		InstallmentNumber: it.InstallmentNumber,
		From:              string(from),
		To:                string(it.Status),
		Timestamp:         time.Now(),
	}
}

// InstallmentOverdueMessage flags a PENDING installment past its due date.
type InstallmentOverdueMessage struct {
	ID                int64     `json:"id"`
	SeriesID          string    `json:"seriesId"`
	InstallmentNumber int       `json:"installmentNumber"`
	Description       string    `json:"description"`
	AmountCents       int64     `json:"amountCents"`
	DueDate           string    `json:"dueDate"`
	DaysOverdue       int       `json:"daysOverdue"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewInstallmentOverdueMessage(it core.Installment, today core.Date) *InstallmentOverdueMessage {
	return &InstallmentOverdueMessage{
		ID:                it.ID,
		SeriesID:          it.SeriesID,
		InstallmentNumber: it.InstallmentNumber,
		Description:       it.Description,
		AmountCents:       it.Amount.Cents,
		DueDate:           it.Date.String(),
		DaysOverdue:       int(today.Sub(it.Date.Time).Hours() / 24),
		Timestamp:         time.Now(),
	}
}

// Delivery is a consumed event: its routing key and raw JSON body.
type Delivery struct {
	RoutingKey string
	Body       []byte
}

// Decode unmarshals the body into v.
func (d Delivery) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}
