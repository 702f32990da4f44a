package handlers

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/scripts"
	"github.com/lightninglabs/onchaind/wire"
)

// revokeHash160 is the hash160 of a revocation pubkey, the form every HTLC
// witness script's revocation clause compares against.
func revokeHash160(pub *btcec.PublicKey) []byte {
	return btcutil.Hash160(pub.SerializeCompressed())
}

// buildHtlcWitnessScript constructs the witness script for one committed
// HTLC stub, dispatching on which side offered it (§4.3, §4.4): an
// owner=Local HTLC is one we offered (built with OfferedHTLCScript,
// generalized to whichever commitment is under examination via keySet's
// self/other convention); owner=Remote is one the counterparty offered
// (ReceivedHTLCScript). keySet.SelfPaymentPrivKey and keySet.OtherPaymentKey
// double as the HTLC sender/receiver keys per §12.4.
func buildHtlcWitnessScript(stub *wire.OnchainHtlc, keySet keys.KeySet) ([]byte, error) {
	revoke := revokeHash160(keySet.SelfRevocationPubKey)

	switch stub.Owner {
	case chantype.Local:
		return scripts.OfferedHTLCScript(
			keySet.SelfPaymentPrivKey.PubKey(), keySet.OtherPaymentKey,
			revoke, stub.PaymentHash160[:],
		)
	case chantype.Remote:
		return scripts.ReceivedHTLCScript(
			stub.CltvExpiry, keySet.OtherPaymentKey, keySet.SelfPaymentPrivKey.PubKey(),
			revoke, stub.PaymentHash160[:],
		)
	default:
		return nil, errkind.NewInternalError("htlc stub has unknown owner side %v", stub.Owner)
	}
}

// htlcCandidate pairs a declared HTLC stub with both forms of its expected
// output script: rawScript is the witness script a sweep's witness stack is
// built and verified against, p2wshScript is its P2WSH output form matched
// against commitment outputs. used is set the first time it matches a
// commitment output, since matchers are single-shot (§4.3).
type htlcCandidate struct {
	stub        *wire.OnchainHtlc
	rawScript   []byte
	p2wshScript []byte
	used        bool
}

// buildHtlcCandidates builds one htlcCandidate per declared HTLC stub.
func buildHtlcCandidates(htlcs []*wire.OnchainHtlc, keySet keys.KeySet) ([]*htlcCandidate, error) {
	candidates := make([]*htlcCandidate, len(htlcs))
	for i, h := range htlcs {
		wscript, err := buildHtlcWitnessScript(h, keySet)
		if err != nil {
			return nil, err
		}
		p2wsh, err := scripts.P2WSH(wscript)
		if err != nil {
			return nil, err
		}
		candidates[i] = &htlcCandidate{stub: h, rawScript: wscript, p2wshScript: p2wsh}
	}
	return candidates, nil
}

// matchHtlcCandidate finds the first unused candidate whose P2WSH output
// script equals pkScript, marking it used, or returns nil if none match.
func matchHtlcCandidate(candidates []*htlcCandidate, pkScript []byte) *htlcCandidate {
	for _, c := range candidates {
		if c.used {
			continue
		}
		if bytes.Equal(c.p2wshScript, pkScript) {
			c.used = true
			return c
		}
	}
	return nil
}

// commitmentFee computes fundingAmount minus the sum of a commitment
// transaction's own output values, the observed fee the feerate search seeds
// its initial range from (§4.6a step 2, §6).
func commitmentFee(fundingAmount btcutil.Amount, commitTx *btcwire.MsgTx) (btcutil.Amount, error) {
	var total btcutil.Amount
	for _, out := range commitTx.TxOut {
		total += btcutil.Amount(out.Value)
	}
	fee := fundingAmount - total
	if fee < 0 {
		return 0, errkind.NewInternalError(
			"commitment outputs sum %d exceeds funding amount %d", total, fundingAmount)
	}
	return fee, nil
}
