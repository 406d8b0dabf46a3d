// Package fees computes protocol and late-payment fees from
// basis-point rates. All amounts are integer minor units of the pool's
// token; results round down so fees never mint value.
package fees

import "math"

const bpsDenominator = 10_000

// ValidBps reports whether bps is a usable basis-point rate.
func ValidBps(bps int64) bool {
	return bps >= 0 && bps <= bpsDenominator
}

// ProtocolFee returns floor(gross * feeBps / 10000).
func ProtocolFee(gross, feeBps int64) int64 {
	return mulBps(gross, feeBps)
}

// LateSurcharge returns the surcharge on a single contribution,
// floor(contribution * lateFeeBps / 10000).
func LateSurcharge(contribution, lateFeeBps int64) int64 {
	return mulBps(contribution, lateFeeBps)
}

func mulBps(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if bps > bpsDenominator {
		bps = bpsDenominator
	}
	if amount > math.MaxInt64/bps {
		// Split to avoid overflow on amount*bps; the quotient part is
		// exact, only the remainder needs the scaled multiply.
		quot := amount / bpsDenominator
		rem := amount % bpsDenominator
		return quot*bps + rem*bps/bpsDenominator
	}
	return amount * bps / bpsDenominator
}
