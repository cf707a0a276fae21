package core

import "fmt"

// NextSettlementStatus returns the status an installment moves to when it is
// settled, and whether that is a change.
//
// PENDING expenses become PAID and PENDING incomes become RECEIVED. PAID,
// RECEIVED and CANCELED are left untouched, so settling twice is a no-op.
func NextSettlementStatus(current Status, t TransactionType) (Status, bool, error) {
	switch current {
	case StatusPaid, StatusReceived, StatusCanceled:
		return current, false, nil
	case StatusPending:
		switch t {
		case Expense:
			return StatusPaid, true, nil
		case Income:
			return StatusReceived, true, nil
		default:
			return current, false, fmt.Errorf("%w: unknown type %q", ErrInvalidTransition, t)
		}
	default:
		return current, false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}
}

// NextCancelStatus returns the status an installment moves to when it is
// canceled. Only PENDING installments can be canceled; canceling twice is a
// no-op.
func NextCancelStatus(current Status) (Status, bool, error) {
	switch current {
	case StatusPending:
		return StatusCanceled, true, nil
	case StatusCanceled:
		return current, false, nil
	default:
		return current, false, fmt.Errorf("%w: cannot cancel a %s installment", ErrInvalidTransition, current)
	}
}

// CheckStatusForType rejects the settled status that belongs to the other
// transaction type: PAID is for expenses and RECEIVED for incomes.
func CheckStatusForType(s Status, t TransactionType) error {
	switch {
	case s == StatusPaid && t != Expense:
		return fmt.Errorf("%w: status %s requires type %s", ErrInvalidRequest, s, Expense)
	case s == StatusReceived && t != Income:
		return fmt.Errorf("%w: status %s requires type %s", ErrInvalidRequest, s, Income)
	}
	return nil
}
