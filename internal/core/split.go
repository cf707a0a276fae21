package core

// SplitInstallments divides total into n amounts whose sum is exactly total.
//
// The work happens in integer cents: every part gets total/n cents and the
// first total%n parts get one extra cent, so the earliest installments absorb
// the remainder. n <= 0 is treated as 1.
//
// Negative totals are split by magnitude and the sign is applied to every
// part, keeping the extra cents on the earliest installments.
func SplitInstallments(total Money, n int) []Money {
	if n < 1 {
		n = 1
	}

	// the magnitude is kept in uint64 so that math.MinInt64 does not wrap
	negative := total.Cents < 0
	magnitude := uint64(total.Cents)
	if negative {
		magnitude = -magnitude
	}

	base := magnitude / uint64(n)
	remainder := magnitude % uint64(n)

	parts := make([]Money, n)
	for i := range parts {
		c := base
		if uint64(i) < remainder {
			c++
		}
		if negative {
			parts[i] = Money{Cents: int64(-c)}
		} else {
			parts[i] = Money{Cents: int64(c)}
		}
	}
	return parts
}

// SumMoney adds up amounts.
func SumMoney(amounts []Money) Money {
	var total Money
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
