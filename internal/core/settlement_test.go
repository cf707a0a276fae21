package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSettlementStatus(t *testing.T) {
	tests := []struct {
		current     Status
		typ         TransactionType
		want        Status
		wantChanged bool
	}{
		{StatusPending, Expense, StatusPaid, true},
		{StatusPending, Income, StatusReceived, true},
		{StatusPaid, Expense, StatusPaid, false},
		{StatusReceived, Income, StatusReceived, false},
		{StatusCanceled, Expense, StatusCanceled, false},
		{StatusCanceled, Income, StatusCanceled, false},
	}
	for _, tt := range tests {
		got, changed, err := NextSettlementStatus(tt.current, tt.typ)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.current, tt.typ)
		assert.Equal(t, tt.wantChanged, changed, "%s/%s", tt.current, tt.typ)
	}
}

func TestNextSettlementStatusIdempotent(t *testing.T) {
	first, changed, err := NextSettlementStatus(StatusPending, Expense)
	assert.NoError(t, err)
	assert.True(t, changed)

	second, changed, err := NextSettlementStatus(first, Expense)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusPaid, second)
}

func TestNextSettlementStatusUnknown(t *testing.T) {
	_, _, err := NextSettlementStatus("LATE", Expense)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = NextSettlementStatus(StatusPending, "TRANSFER")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNextCancelStatus(t *testing.T) {
	got, changed, err := NextCancelStatus(StatusPending)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCanceled, got)

	got, changed, err = NextCancelStatus(StatusCanceled)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusCanceled, got)

	for _, s := range []Status{StatusPaid, StatusReceived} {
		_, _, err := NextCancelStatus(s)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestCheckStatusForType(t *testing.T) {
	tests := []struct {
		status Status
		typ    TransactionType
		ok     bool
	}{
		{StatusPending, Expense, true},
		{StatusPending, Income, true},
		{StatusCanceled, Income, true},
		{StatusPaid, Expense, true},
		{StatusReceived, Income, true},
		{StatusPaid, Income, false},
		{StatusReceived, Expense, false},
	}
	for _, tt := range tests {
		err := CheckStatusForType(tt.status, tt.typ)
		if tt.ok {
			assert.NoError(t, err, "%s/%s", tt.status, tt.typ)
		} else {
			assert.ErrorIs(t, err, ErrInvalidRequest, "%s/%s", tt.status, tt.typ)
		}
	}
}
