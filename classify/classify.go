// Package classify implements the close classifier (§4.1): given the
// transaction that spent the funding output, decide which of the five close
// types occurred (or fail fatally if none fit). It mirrors breacharbiter.go's
// dispatch between UnilateralClose and ContractBreach handling, generalized
// to a full five-way close-type decision tree. "Our own" commitment is
// recognized by comparing the spending transaction's txid with the txid we
// broadcast; no script is re-derived for that.
package classify

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/shachain"
)

// Input collects everything the classifier needs from the channel's static
// state and the observed funding-spend transaction (§6 onchain_init fields).
type Input struct {
	SpendingTx *btcwire.MsgTx

	LocalClosingScript  []byte
	RemoteClosingScript []byte

	OurBroadcastTxid chainhash.Hash

	FunderSide             chantype.Side
	LocalPaymentBasepoint  *btcec.PublicKey
	RemotePaymentBasepoint *btcec.PublicKey

	// RevocationsReceived is the number of revocations received from the
	// counterparty: a commitment number equal to it is their previous
	// (not yet revoked) commitment, and one above it is their current
	// commitment (§4.1 steps 5-6).
	RevocationsReceived uint64

	// Shachain holds every revocation secret received so far, used to
	// detect a revoked-commitment broadcast (§4.1 step 4).
	Shachain *shachain.Store
}

// Result is the classifier's verdict (§3, §4.1).
type Result struct {
	CloseType chantype.CloseType

	// CommitNum is the unmasked commitment number of the spending
	// transaction. Meaningless (and zero) for CloseMutual.
	CommitNum uint64
}

// IsMutualClose reports whether tx matches the mutual-close shape: every
// output pays one of the two closing scripts, and each closing script is
// paid by at most one output (§4.1 step 1, §8 iff-law).
func IsMutualClose(tx *btcwire.MsgTx, localClosingScript, remoteClosingScript []byte) bool {
	var localMatches, remoteMatches int

	for _, out := range tx.TxOut {
		switch {
		case scriptEqual(out.PkScript, localClosingScript):
			localMatches++
		case scriptEqual(out.PkScript, remoteClosingScript):
			remoteMatches++
		default:
			return false
		}
	}

	return localMatches <= 1 && remoteMatches <= 1
}

func scriptEqual(a, b []byte) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Classify runs the ordered decision rule of §4.1 against in.SpendingTx.
func Classify(in Input) (Result, error) {
	if len(in.SpendingTx.TxIn) == 0 {
		return Result{}, errkind.NewBadCommand(
			"funding-spend transaction has no inputs")
	}

	if IsMutualClose(in.SpendingTx, in.LocalClosingScript, in.RemoteClosingScript) {
		return Result{CloseType: chantype.CloseMutual}, nil
	}

	masked, err := keys.CombineObscuredCommitNumber(
		in.SpendingTx.TxIn[0].Sequence, in.SpendingTx.LockTime,
	)
	if err != nil {
		return Result{}, err
	}
	commitNum := keys.UnmaskCommitNumber(
		masked, in.FunderSide, in.LocalPaymentBasepoint, in.RemotePaymentBasepoint,
	)

	txid := in.SpendingTx.TxHash()

	switch {
	case txid == in.OurBroadcastTxid:
		log.Debugf("classify: commit_num=%d matches our own broadcast txid %s", commitNum, txid)
		return Result{CloseType: chantype.CloseOurUnilateral, CommitNum: commitNum}, nil

	case in.Shachain != nil && hasRevocation(in.Shachain, commitNum):
		log.Warnf("classify: commit_num=%d was revoked, txid %s is a breach", commitNum, txid)
		return Result{CloseType: chantype.CloseTheirRevoked, CommitNum: commitNum}, nil

	case commitNum == in.RevocationsReceived:
		log.Debugf("classify: commit_num=%d is the counterparty's previous commitment", commitNum)
		return Result{CloseType: chantype.CloseTheirUnilateralPrevious, CommitNum: commitNum}, nil

	case commitNum == in.RevocationsReceived+1:
		log.Debugf("classify: commit_num=%d is the counterparty's current commitment", commitNum)
		return Result{CloseType: chantype.CloseTheirUnilateralCurrent, CommitNum: commitNum}, nil

	default:
		return Result{}, errkind.NewInternalError(
			"funding-spend commitment number %d matches neither our "+
				"broadcast, a revoked commitment, nor the expected "+
				"counterparty commitment range (revocations_received=%d)",
			commitNum, in.RevocationsReceived)
	}
}

// hasRevocation reports whether the shachain store can derive the
// revocation secret for commitNum, i.e. whether the counterparty has
// already revoked that commitment.
func hasRevocation(s *shachain.Store, commitNum uint64) bool {
	_, ok := s.LookupSecret(commitNum)
	return ok
}
