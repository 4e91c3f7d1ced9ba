// Package model holds the shared data types that flow between the
// polling, aggregation, governance and submission stages.
package model

import (
	"math/big"
	"time"
)

// Classification is the outcome of the safety governor's deviation check.
type Classification int

const (
	ClassificationOK Classification = iota
	ClassificationWarn
	ClassificationHalt
)

func (c Classification) String() string {
	switch c {
	case ClassificationOK:
		return "ok"
	case ClassificationWarn:
		return "warn"
	case ClassificationHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Rate is a non-negative exact rational number expressing EUR per CCD.
// It is a thin wrapper over big.Rat so that call sites read in domain
// terms rather than raw big.Rat arithmetic.
type Rate struct {
	r *big.Rat
}

// NewRate builds a Rate from a numerator/denominator pair. The
// denominator must be strictly positive.
func NewRate(num, den *big.Int) (Rate, bool) {
	if den.Sign() <= 0 || num.Sign() < 0 {
		return Rate{}, false
	}
	return Rate{r: new(big.Rat).SetFrac(num, den)}, true
}

// RateFromFloat rejects non-finite or negative values, matching the
// ingress rule in spec.md section 4.1: "reject non-finite or negative
// values".
func RateFromFloat(f float64) (Rate, bool) {
	if f != f || f < 0 { // NaN check via self-inequality
		return Rate{}, false
	}
	if f > 0 && (f*0 != 0) { // +Inf/-Inf: f*0 is NaN
		return Rate{}, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(bigFloatString(f)); !ok {
		return Rate{}, false
	}
	return Rate{r: r}, true
}

// bigFloatString renders f with enough precision to round-trip through
// big.Rat.SetString without going through the lossy %v formatter.
func bigFloatString(f float64) string {
	bf := new(big.Float).SetPrec(200).SetFloat64(f)
	return bf.Text('f', -1)
}

// Rat exposes the underlying exact rational for arithmetic in the
// aggregate and governor packages.
func (r Rate) Rat() *big.Rat { return r.r }

// IsZero reports whether the rate is unset (the zero value) or equal to 0.
func (r Rate) IsZero() bool { return r.r == nil || r.r.Sign() == 0 }

// Valid reports whether the rate carries a non-nil, non-negative value.
func (r Rate) Valid() bool { return r.r != nil && r.r.Sign() >= 0 }

func (r Rate) String() string {
	if r.r == nil {
		return "<nil>"
	}
	return r.r.RatString()
}

// FractionPair reduces the rate to a numerator/denominator pair that both
// fit in a uint64, using the Stern-Brocot mediant search in package
// aggregate. Kept here only as a type; the algorithm lives in aggregate
// so that it can be unit tested against the canonical (num, den, epsilon)
// vectors independently of the Rate wrapper.
type FractionPair struct {
	Numerator   uint64
	Denominator uint64
}

// SourceHistory is a bounded, insertion-ordered list of recently
// observed valid rates for one source, plus lightweight health
// counters. history.Ring embeds it and adds the mutex and eviction
// policy that make it safe for a poller to mutate concurrently with
// readers taking snapshots (see internal/history).
type SourceHistory struct {
	Source            string
	Rates             []Rate
	LastSuccessAt     time.Time
	ConsecutiveErrors int
	TotalErrors       int
}

// CandidateUpdate is the ephemeral result of one update tick's governor
// evaluation.
type CandidateUpdate struct {
	NewRate            Rate
	PreviousOnChain    Rate
	DeviationPercent   *big.Rat
	Classification     Classification
}

// GovernanceKey is one governance keypair held in memory for threshold
// signing. KeyIndex is the index declared in the key file; it is
// informational only, since the key's authorized slot is resolved from
// the chain's level-2 key list at signing time (security.ThresholdSign).
type GovernanceKey struct {
	KeyIndex   uint16
	PrivateKey []byte // raw ECDSA private key scalar, as loaded from the key file
}

// ChainUpdateIntent is the fully-built payload ready for broadcast.
type ChainUpdateIntent struct {
	Rate           Rate
	Fraction       FractionPair
	SequenceNumber uint64
	EffectiveTime  uint64 // 0 == immediate, per spec.md 4.4 step 5
	ExpiryTime     time.Time
	Signatures     map[uint16][]byte // keyIndex -> signature
}

// AuditRecord is the tuple passed to the optional audit hook on a
// successful submission: observed per-source rates, the aggregated
// candidate, the value actually submitted, and the time of submission.
type AuditRecord struct {
	ObservedSources map[string]Rate
	AggregatedRate  Rate
	SubmittedRate   Rate
	SubmittedAt     time.Time
}
