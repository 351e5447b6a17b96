package reward

import "github.com/shopspring/decimal"

// Detect compares a fresh cumulative-paid observation against the prior
// snapshot and decides whether a new payout happened.
//
// The engine never recognizes individual payout transactions, only the
// high-water mark per source, which makes it robust to provider-side
// batching and delayed settlement. Policy:
//
//   - no prior snapshot: no delta, crediting on first sight would count
//     pre-existing pool balances
//   - delta <= 0: no delta, a provider counter reset is a baseline advance,
//     never a negative credit
//   - delta < minDelta: no delta, filters provider rounding noise
func Detect(prev *Snapshot, cumulativePaid decimal.Decimal, minDelta decimal.Decimal) *Delta {
	if prev == nil {
		return nil
	}
	raw := cumulativePaid.Sub(prev.CumulativePaid)
	if raw.Sign() <= 0 {
		return nil
	}
	if raw.LessThan(minDelta) {
		return nil
	}
	return &Delta{Amount: raw}
}
