// Package aggregate implements the rate aggregator (C2): a double
// median over exact rationals, plus the Stern-Brocot mediant search used
// to reduce an arbitrary-precision rational into a numerator/denominator
// pair that both fit in a uint64 for the on-chain wire format.
package aggregate

import (
	"math/big"
	"sort"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/model"
)

// Aggregate computes the median-of-per-source-medians over the given
// store's rings, in deterministic source-identifier order. It returns
// false if every source history is empty (spec.md invariant 5).
func Aggregate(store *history.Store) (model.Rate, bool) {
	sources := store.Sources()
	sort.Strings(sources)

	medians := make([]*big.Rat, 0, len(sources))
	for _, s := range sources {
		ring := store.Ring(s)
		if ring == nil {
			continue
		}
		snap := ring.Snapshot()
		if len(snap) == 0 {
			continue
		}
		medians = append(medians, medianOf(snap))
	}

	if len(medians) == 0 {
		return model.Rate{}, false
	}

	sort.Slice(medians, func(i, j int) bool { return medians[i].Cmp(medians[j]) < 0 })
	m := middleValue(medians)

	rate, ok := model.NewRate(m.Num(), m.Denom())
	return rate, ok
}

// medianOf returns the median of a slice of rates, tie-breaking an even
// count with the arithmetic mean of the two middle values, in exact
// rationals (spec.md 4.2 step 1).
func medianOf(rates []model.Rate) *big.Rat {
	sorted := make([]*big.Rat, len(rates))
	for i, r := range rates {
		sorted[i] = new(big.Rat).Set(r.Rat())
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return middleValue(sorted)
}

// middleValue returns the median of an already-sorted, non-empty slice
// of big.Rat, averaging the two central values when the count is even.
func middleValue(sorted []*big.Rat) *big.Rat {
	n := len(sorted)
	if n%2 == 1 {
		return new(big.Rat).Set(sorted[n/2])
	}
	sum := new(big.Rat).Add(sorted[n/2-1], sorted[n/2])
	return sum.Quo(sum, big.NewRat(2, 1))
}

// maxUint64 is 2^64 - 1, the largest value either side of the on-chain
// fraction may take (spec.md section 3).
var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ReduceToFraction converts an exact rational target into a
// numerator/denominator pair both bounded by 2^64-1, matching the target
// to within epsilon. It ports the Stern-Brocot mediant search from the
// original Rust implementation's convert_big_fraction_to_exchange_rate:
// starting from the boundary fractions 0/1 and 1/0, it repeatedly walks
// toward the target by adding the current low or high bound to the
// mediant, until the mediant is within epsilon of the target or a
// uint64 would overflow, in which case it falls back to whichever of
// the current low/high bound is numerically closer to the target.
//
// The open question in spec.md's design notes ("the exact tie-breaking
// rule ... is under-specified") is resolved here identically to the
// original: on overflow, prefer the bound with the smaller absolute
// difference from the target; on an exact tie, prefer low.
func ReduceToFraction(target *big.Rat, epsilon *big.Rat) model.FractionPair {
	if target.Sign() == 0 {
		return model.FractionPair{Numerator: 0, Denominator: 1}
	}

	if num, den, ok := directFit(target); ok {
		return model.FractionPair{Numerator: num, Denominator: den}
	}

	lowNum, lowDen := big.NewInt(0), big.NewInt(1)
	highNum, highDen := big.NewInt(1), big.NewInt(0)

	for {
		medNum := new(big.Int).Add(lowNum, highNum)
		medDen := new(big.Int).Add(lowDen, highDen)

		if medNum.Cmp(maxUint64) > 0 || medDen.Cmp(maxUint64) > 0 {
			return closest(target, lowNum, lowDen, highNum, highDen)
		}

		mediant := new(big.Rat).SetFrac(medNum, medDen)
		diff := new(big.Rat).Sub(mediant, target)
		diff.Abs(diff)
		if diff.Cmp(epsilon) <= 0 {
			return model.FractionPair{Numerator: medNum.Uint64(), Denominator: medDen.Uint64()}
		}

		if mediant.Cmp(target) < 0 {
			lowNum, lowDen = medNum, medDen
		} else {
			highNum, highDen = medNum, medDen
		}
	}
}

// directFit checks whether target is already exactly representable with
// both numerator and denominator within uint64 range.
func directFit(target *big.Rat) (uint64, uint64, bool) {
	num, den := target.Num(), target.Denom()
	if num.Sign() < 0 || num.Cmp(maxUint64) > 0 || den.Cmp(maxUint64) > 0 {
		return 0, 0, false
	}
	return num.Uint64(), den.Uint64(), true
}

// closest picks whichever of the low/high mediant-search bounds lies
// nearer to target, breaking an exact tie toward low.
func closest(target *big.Rat, lowNum, lowDen, highNum, highDen *big.Int) model.FractionPair {
	low := new(big.Rat).SetFrac(lowNum, lowDen)
	high := new(big.Rat).SetFrac(highNum, highDen)

	lowDiff := new(big.Rat).Sub(target, low)
	lowDiff.Abs(lowDiff)
	highDiff := new(big.Rat).Sub(high, target)
	highDiff.Abs(highDiff)

	if highDiff.Cmp(lowDiff) < 0 {
		return model.FractionPair{Numerator: highNum.Uint64(), Denominator: highDen.Uint64()}
	}
	return model.FractionPair{Numerator: lowNum.Uint64(), Denominator: lowDen.Uint64()}
}

// DefaultEpsilon matches the 1/10^12 tolerance used throughout the
// original implementation's conversion test vectors.
func DefaultEpsilon() *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
	return new(big.Rat).SetFrac(big.NewInt(1), denom)
}

// RelativeDeviationPercent computes (candidate - previous) / previous *
// 100 in exact rationals, the signed percent deviation consumed by the
// safety governor (spec.md 4.3).
func RelativeDeviationPercent(candidate, previous *big.Rat) *big.Rat {
	if previous.Sign() == 0 {
		return nil
	}
	diff := new(big.Rat).Sub(candidate, previous)
	ratio := new(big.Rat).Quo(diff, previous)
	return ratio.Mul(ratio, big.NewRat(100, 1))
}
