package handlers

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/feerate"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/resolution"
	"github.com/lightninglabs/onchaind/scripts"
	"github.com/lightninglabs/onchaind/txgen"
	"github.com/lightninglabs/onchaind/wire"
)

// TheirUnilateralInput collects everything TheirUnilateral needs to examine
// one of the counterparty's broadcast commitment transactions (§4.4, §4.6b).
// PerCommitmentPoint is whichever of RemotePerCommitPointOld/Cur matches the
// classified commit_num — the point is given directly since this is their
// commitment, not derived from a shachain secret we don't hold.
type TheirUnilateralInput struct {
	ChannelSeed                   [32]byte
	PerCommitmentPoint            *btcec.PublicKey
	ToSelfDelayRemote             uint32
	RemoteRevocationBasepoint     *btcec.PublicKey
	RemotePaymentBasepoint        *btcec.PublicKey
	RemoteDelayedPaymentBasepoint *btcec.PublicKey
	OurWalletPubKey               *btcec.PublicKey
	FeeratePerKw                  uint32
	FundingAmountSat              btcutil.Amount
	LocalDustLimitSat             btcutil.Amount
	CommitTx                      *btcwire.MsgTx
	CommitTxBlockheight           uint32
	Htlcs                         []*wire.OnchainHtlc
	RemoteHtlcSignatures          [][]byte
}

// TheirUnilateral walks one of the counterparty's broadcast commitment
// transactions, matching each output against our own unencumbered output,
// their delayed-to-them output, and every HTLC script (§4.4).
func TheirUnilateral(store *resolution.Store, in TheirUnilateralInput) error {
	local := keys.DeriveLocalBasepoints(in.ChannelSeed)
	keySet := keys.DeriveKeySet(local, in.RemoteRevocationBasepoint,
		in.RemotePaymentBasepoint, in.PerCommitmentPoint, chantype.Remote)
	theirDelayedPub := keys.DeriveSimplePubKey(in.RemoteDelayedPaymentBasepoint, in.PerCommitmentPoint)

	toUsScript, err := scripts.ToRemoteScript(keySet.SelfPaymentPrivKey.PubKey())
	if err != nil {
		return err
	}
	theirDelayedRaw, err := scripts.ToLocalScript(
		in.ToSelfDelayRemote, theirDelayedPub, keySet.SelfRevocationPubKey)
	if err != nil {
		return err
	}
	theirDelayedP2WSH, err := scripts.P2WSH(theirDelayedRaw)
	if err != nil {
		return err
	}
	walletScript, err := scripts.ToRemoteScript(in.OurWalletPubKey)
	if err != nil {
		return err
	}

	htlcCandidates, err := buildHtlcCandidates(in.Htlcs, keySet)
	if err != nil {
		return err
	}

	observedFee, err := commitmentFee(in.FundingAmountSat, in.CommitTx)
	if err != nil {
		return err
	}
	feeRange, err := feerate.SeedFromCommitmentFee(observedFee, len(in.Htlcs))
	if err != nil {
		return err
	}

	commitTxid := in.CommitTx.TxHash()
	sigCursor := 0

	for idx, out := range in.CommitTx.TxOut {
		outIdx := uint32(idx)
		amt := btcutil.Amount(out.Value)

		switch {
		case bytes.Equal(out.PkScript, toUsScript):
			handle := store.NewTrackedOutput(chantype.TheirUnilateral, commitTxid,
				in.CommitTxBlockheight, outIdx, amt, chantype.OutputToUs)
			if err := store.Ignore(handle); err != nil {
				return err
			}

		case bytes.Equal(out.PkScript, theirDelayedP2WSH):
			handle := store.NewTrackedOutput(chantype.TheirUnilateral, commitTxid,
				in.CommitTxBlockheight, outIdx, amt, chantype.DelayedOutputToThem)
			if err := store.Ignore(handle); err != nil {
				return err
			}

		default:
			cand := matchHtlcCandidate(htlcCandidates, out.PkScript)
			if cand == nil {
				return errkind.NewInternalError(
					"commitment output %d matches no known script on their commitment", outIdx)
			}

			switch cand.stub.Owner {
			case chantype.Local:
				handle := store.NewTrackedOutput(chantype.TheirUnilateral, commitTxid,
					in.CommitTxBlockheight, outIdx, amt, chantype.OurHtlc)

				if sigCursor >= len(in.RemoteHtlcSignatures) {
					return errkind.NewInternalError(
						"ran out of remote htlc signatures at htlc output %d", outIdx)
				}
				remoteSig := in.RemoteHtlcSignatures[sigCursor]
				sigCursor++

				outpoint := btcwire.OutPoint{Hash: commitTxid, Index: outIdx}
				if err := resolveOurHtlcTheirCommit(store, handle, outpoint, amt, cand,
					keySet, walletScript, in.LocalDustLimitSat, remoteSig, &feeRange); err != nil {
					return err
				}

			case chantype.Remote:
				handle := store.NewTrackedOutput(chantype.TheirUnilateral, commitTxid,
					in.CommitTxBlockheight, outIdx, amt, chantype.TheirHtlc)
				if err := TheirHtlc(store, handle, cand.stub); err != nil {
					return err
				}

			default:
				return errkind.NewInternalError("htlc stub has unknown owner side %v", cand.stub.Owner)
			}
		}
	}

	if sigCursor != len(in.RemoteHtlcSignatures) {
		return errkind.NewInternalError(
			"consumed %d of %d remote htlc signatures", sigCursor, len(in.RemoteHtlcSignatures))
	}

	return nil
}

// resolveOurHtlcTheirCommit resolves an HTLC we offered, found on the
// counterparty's broadcast commitment (§4.6b). Unlike the second-stage
// HTLC-timeout tx of §4.6a, this is a single-stage direct sweep straight to
// our wallet — but the 2-of-2 timeout clause OfferedHTLCScript now builds
// still needs the counterparty's co-signature, so the same feerate
// brute-force search applies here, against the direct sweep's own
// witnessOverhead-based weight formula rather than the fixed 663-weight
// HTLC-timeout formula. verify checks each candidate fee against the same
// zero-output-or-not shape DirectSweepTx would build at that fee, since a
// sufficiently small HTLC amount or high feerate can fall at or below dust
// (§4.6b), in which case the swept funds are spent entirely to fee rather
// than aborting. Both resolvers draw from the same RemoteHtlcSignatures
// list, each through its own handler's local cursor, because a close is
// classified as exactly one of our own or the
// counterparty's unilateral close, never both — only one of OurUnilateral
// or TheirUnilateral ever runs per channel.
func resolveOurHtlcTheirCommit(store *resolution.Store, handle resolution.Handle,
	outpoint btcwire.OutPoint, htlcAmt btcutil.Amount, cand *htlcCandidate,
	keySet keys.KeySet, destScript []byte, dustLimit btcutil.Amount,
	remoteSig []byte, feeRange *feerate.Range) error {

	feeAt := func(feeratePerKw uint32) btcutil.Amount {
		return txgen.DirectSweepFee(feeratePerKw, len(cand.rawScript))
	}

	verify := func(fee btcutil.Amount) (bool, error) {
		isDust := txgen.IsDirectSweepDust(htlcAmt, fee, len(cand.rawScript), dustLimit)

		candidateTx := btcwire.NewMsgTx(2)
		candidateTx.AddTxIn(&btcwire.TxIn{PreviousOutPoint: outpoint})
		if !isDust {
			candidateTx.AddTxOut(&btcwire.TxOut{
				Value:    int64(htlcAmt - fee),
				PkScript: destScript,
			})
		}
		return scripts.VerifySignature(
			candidateTx, 0, htlcAmt, cand.rawScript, remoteSig, keySet.OtherPaymentKey)
	}

	foundFeerate, _, found, err := feerate.InferFeerate(*feeRange, htlcAmt, feeAt, verify)
	if err != nil {
		return err
	}
	if !found {
		return errkind.NewInternalError(
			"no feerate in [%d,%d] matches counterparty signature for direct htlc sweep at outpoint %s",
			feeRange.Min, feeRange.Max, outpoint)
	}

	narrowed, err := feeRange.Pin(foundFeerate)
	if err != nil {
		return err
	}
	*feeRange = narrowed

	log.Debugf("handlers: direct htlc sweep at outpoint %s inferred feerate %d sat/kw",
		outpoint, foundFeerate)

	sweepTx, isDust := txgen.DirectSweepTx(
		outpoint, htlcAmt, destScript, foundFeerate, len(cand.rawScript), dustLimit)
	if isDust {
		log.Debugf("handlers: direct htlc sweep at outpoint %s is below dust at "+
			"inferred feerate %d, spending to fee", outpoint, foundFeerate)
	}

	witness, err := scripts.OfferedHTLCWitnessTimeout(
		cand.rawScript, htlcAmt, keySet.SelfPaymentPrivKey, remoteSig, sweepTx)
	if err != nil {
		return err
	}
	sweepTx.TxIn[0].Witness = witness

	return store.ProposeAtBlock(handle, sweepTx, cand.stub.CltvExpiry, chantype.OurHtlcTimeoutToUs)
}
