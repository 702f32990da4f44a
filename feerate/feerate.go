// Package feerate implements the mutable [min, max] feerate bound (§3) and
// the brute-force feerate inference the HTLC-timeout resolver depends on
// (§4.6a, §9): the protocol never transmits the feerate alongside a
// counterparty signature, so the only way to recover it is trial
// verification against the narrowing bound, descending from the top of the
// range as "more likely to be near max" per the design notes. The fee-rate
// bookkeeping style follows the running weight/fee estimate idiom of
// sweep/txgenerator.go.
package feerate

import (
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/txgen"
)

// Range is a [Min, Max] bound on the channel's feerate in sat/kW.
type Range struct {
	Min uint32
	Max uint32
}

// NewRange constructs a Range, rejecting an inverted bound outright.
func NewRange(min, max uint32) (Range, error) {
	if min > max {
		return Range{}, errkind.NewInternalError(
			"feerate range inverted: min %d > max %d", min, max)
	}
	return Range{Min: min, Max: max}, nil
}

// SeedFromCommitmentFee derives the initial feerate range from the observed
// commitment fee and the commitment's untrimmed HTLC count, inverting the
// fee formula of §6: fee = feerate_per_kw * (724 + 172*n) / 1000 (floor
// division), so any feerate in the returned range would floor-divide to
// exactly the observed fee.
func SeedFromCommitmentFee(observedFee btcutil.Amount, numUntrimmedHtlcs int) (Range, error) {
	if observedFee < 0 {
		return Range{}, errkind.NewInternalError(
			"negative commitment fee %d", observedFee)
	}

	weight := uint64(724 + 172*numUntrimmedHtlcs)
	lowBound := uint64(observedFee) * 1000
	highBound := lowBound + 999

	min := (lowBound + weight - 1) / weight // ceil
	max := highBound / weight                // floor

	if min > max {
		return Range{}, errkind.NewInternalError(
			"commitment fee %d admits no feerate for weight %d",
			observedFee, weight)
	}

	return Range{Min: uint32(min), Max: uint32(max)}, nil
}

// Narrow intersects the range with [newMin, newMax], the only narrowing
// operation the engine performs — the result is always a subset of the
// receiver, so the §8 monotonicity invariant holds unconditionally.
func (r Range) Narrow(newMin, newMax uint32) (Range, error) {
	min := r.Min
	if newMin > min {
		min = newMin
	}
	max := r.Max
	if newMax < max {
		max = newMax
	}
	if min > max {
		return Range{}, errkind.NewInternalError(
			"feerate range collapsed narrowing [%d,%d] by [%d,%d]",
			r.Min, r.Max, newMin, newMax)
	}
	return Range{Min: min, Max: max}, nil
}

// Pin narrows the range to the single feerate f, used once a brute-force
// search finds the exact feerate a counterparty signature implies.
func (r Range) Pin(f uint32) (Range, error) {
	return r.Narrow(f, f)
}

// VerifyFunc checks whether a candidate fee produces a valid counterparty
// signature, the per-candidate step of the brute force (§4.6a step 3).
type VerifyFunc func(fee btcutil.Amount) (bool, error)

// FeeAtFunc computes the fee a candidate feerate implies for a specific
// transaction shape, parameterizing InferFeerate over the weight formula of
// whichever second-stage or sweep transaction is being inferred for.
type FeeAtFunc func(feeratePerKw uint32) btcutil.Amount

// InferFeerate brute-forces the feerate implied by a counterparty-supplied
// signature, iterating i = r.Max downto r.Min (§4.6a step 3, §9). It skips
// candidate fees exceeding htlcAmt and deduplicates consecutive candidate
// feerates that produce the same fee under feeAt. Generalizes
// InferHtlcTimeoutFeerate's brute-force loop to any fee formula, since
// §4.6b's single-stage direct sweep needs the same search against a
// different weight.
func InferFeerate(r Range, htlcAmt btcutil.Amount, feeAt FeeAtFunc,
	verify VerifyFunc) (feerate uint32, fee btcutil.Amount, found bool, err error) {

	var lastFee btcutil.Amount = -1
	for i := int64(r.Max); i >= int64(r.Min); i-- {
		candidate := uint32(i)
		candidateFee := feeAt(candidate)

		if candidateFee > htlcAmt {
			continue
		}
		if candidateFee == lastFee {
			continue
		}
		lastFee = candidateFee

		ok, verr := verify(candidateFee)
		if verr != nil {
			return 0, 0, false, verr
		}
		if ok {
			log.Debugf("feerate: found feerate %d sat/kw (fee %d) after %d candidates",
				candidate, candidateFee, r.Max-candidate+1)
			return candidate, candidateFee, true, nil
		}
	}
	log.Debugf("feerate: exhausted range [%d,%d] without a verifying signature", r.Min, r.Max)
	return 0, 0, false, nil
}

// InferHtlcTimeoutFeerate is InferFeerate specialized to the HTLC-timeout
// transaction's fixed 663-weight-unit fee formula (§4.6a step 3).
func InferHtlcTimeoutFeerate(r Range, htlcAmt btcutil.Amount,
	verify VerifyFunc) (feerate uint32, fee btcutil.Amount, found bool, err error) {

	return InferFeerate(r, htlcAmt, txgen.HtlcTimeoutFee, verify)
}
