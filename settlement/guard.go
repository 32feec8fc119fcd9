package settlement

import "time"

// ClockSkewTolerance is how far into the future a last-payment date may sit
// before the stall's billing state is treated as corrupted. It absorbs small
// clock drift between terminals.
const ClockSkewTolerance = 60 * time.Second

// ValidateStall reports whether the stall's billing state is physically
// plausible: a non-negative rent and a last-payment date no further than the
// skew tolerance into the future. It is pure, has no side effects, and must
// run before any computation trusts the stall. On false, callers treat the
// financial state as unknown, never as zero debt.
func ValidateStall(stall Stall, now time.Time) bool {
	if stall.Price == nil || stall.Price.Sign() < 0 {
		return false
	}
	if stall.LastPayment.After(now.Add(ClockSkewTolerance)) {
		return false
	}
	return true
}
