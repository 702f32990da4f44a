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
	"github.com/lightninglabs/onchaind/shachain"
	"github.com/lightninglabs/onchaind/txgen"
	"github.com/lightninglabs/onchaind/wire"
)

// toLocalSweepWitnessWeight estimates the weight a to-local timeout witness
// (signature, zero-byte OP_IF selector, witness script) contributes to a
// sweep transaction's overall weight, following the fixed-estimate style
// txgen.htlcTimeoutTxWeight already uses for the HTLC-timeout tx.
const toLocalSweepWitnessWeight = 230

// OurUnilateralInput collects everything OurUnilateral needs to examine one
// of our own broadcast commitment transactions (§4.3, §4.6a).
type OurUnilateralInput struct {
	ChannelSeed               [32]byte
	CommitNum                 uint64
	ToSelfDelay               uint32
	RemoteRevocationBasepoint *btcec.PublicKey
	RemotePaymentBasepoint    *btcec.PublicKey
	OurWalletPubKey           *btcec.PublicKey
	FeeratePerKw              uint32
	FundingAmountSat          btcutil.Amount
	CommitTx                  *btcwire.MsgTx
	CommitTxBlockheight       uint32
	Htlcs                     []*wire.OnchainHtlc
	RemoteHtlcSignatures      [][]byte
}

// OurUnilateral walks our own broadcast commitment transaction's outputs,
// matching each against the to-local, to-remote and HTLC scripts derived for
// commit_num (§4.3), tracking and, where the engine can act unilaterally,
// proposing a resolution for each.
func OurUnilateral(store *resolution.Store, in OurUnilateralInput) error {
	local := keys.DeriveLocalBasepoints(in.ChannelSeed)
	shachainSeed := keys.DeriveShachainSeed(in.ChannelSeed)
	secret := shachain.NewRevocationProducer(shachainSeed).AtIndex(in.CommitNum)
	perCommitmentPoint := keys.DerivePerCommitmentPoint(secret)

	keySet := keys.DeriveKeySet(local, in.RemoteRevocationBasepoint,
		in.RemotePaymentBasepoint, perCommitmentPoint, chantype.Local)

	toLocalRaw, err := scripts.ToLocalScript(
		in.ToSelfDelay, keySet.SelfDelayedPaymentPrivKey.PubKey(), keySet.SelfRevocationPubKey)
	if err != nil {
		return err
	}
	toLocalP2WSH, err := scripts.P2WSH(toLocalRaw)
	if err != nil {
		return err
	}
	toRemoteScript, err := scripts.ToRemoteScript(keySet.OtherPaymentKey)
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
		case bytes.Equal(out.PkScript, toLocalP2WSH):
			handle := store.NewTrackedOutput(chantype.OurUnilateral, commitTxid,
				in.CommitTxBlockheight, outIdx, amt, chantype.DelayedOutputToUs)

			sweepTx := txgen.DelayedToSelfSweepTx(
				btcwire.OutPoint{Hash: commitTxid, Index: outIdx}, amt,
				in.ToSelfDelay, walletScript, in.FeeratePerKw, toLocalSweepWitnessWeight,
			)
			witness, err := scripts.ToLocalWitnessTimeout(
				toLocalRaw, amt, in.ToSelfDelay, keySet.SelfDelayedPaymentPrivKey, sweepTx)
			if err != nil {
				return err
			}
			sweepTx.TxIn[0].Witness = witness

			if err := store.Propose(handle, sweepTx, in.ToSelfDelay,
				chantype.OurUnilateralToUsReturnToWallet); err != nil {
				return err
			}

		case bytes.Equal(out.PkScript, toRemoteScript):
			handle := store.NewTrackedOutput(chantype.OurUnilateral, commitTxid,
				in.CommitTxBlockheight, outIdx, amt, chantype.OutputToThem)
			if err := store.Ignore(handle); err != nil {
				return err
			}

		default:
			cand := matchHtlcCandidate(htlcCandidates, out.PkScript)
			if cand == nil {
				return errkind.NewInternalError(
					"commitment output %d matches no known script on our own commitment", outIdx)
			}

			switch cand.stub.Owner {
			case chantype.Local:
				handle := store.NewTrackedOutput(chantype.OurUnilateral, commitTxid,
					in.CommitTxBlockheight, outIdx, amt, chantype.OurHtlc)

				if sigCursor >= len(in.RemoteHtlcSignatures) {
					return errkind.NewInternalError(
						"ran out of remote htlc signatures at htlc output %d", outIdx)
				}
				remoteSig := in.RemoteHtlcSignatures[sigCursor]
				sigCursor++

				outpoint := btcwire.OutPoint{Hash: commitTxid, Index: outIdx}
				if err := resolveOurHtlcOurCommit(store, handle, outpoint, amt, cand,
					keySet, toLocalP2WSH, remoteSig, &feeRange); err != nil {
					return err
				}

			case chantype.Remote:
				handle := store.NewTrackedOutput(chantype.OurUnilateral, commitTxid,
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

// resolveOurHtlcOurCommit resolves an HTLC we offered on our own broadcast
// commitment (§4.6a): the HTLC-timeout transaction's output re-encumbers the
// swept funds under the same to-local script as the commitment's own delayed
// output, so the counterparty's co-signature feerate must be recovered by
// brute force before the transaction can be finalized and proposed.
func resolveOurHtlcOurCommit(store *resolution.Store, handle resolution.Handle,
	outpoint btcwire.OutPoint, htlcAmt btcutil.Amount, cand *htlcCandidate,
	keySet keys.KeySet, toLocalP2WSH []byte, remoteSig []byte, feeRange *feerate.Range) error {

	skeleton := txgen.HtlcTimeoutTx(outpoint, htlcAmt, cand.stub.CltvExpiry, toLocalP2WSH)

	verify := func(fee btcutil.Amount) (bool, error) {
		candidateTx := skeleton.Copy()
		txgen.ApplyHtlcTimeoutFee(candidateTx, fee)
		return scripts.VerifySignature(
			candidateTx, 0, htlcAmt, cand.rawScript, remoteSig, keySet.OtherPaymentKey)
	}

	foundFeerate, fee, found, err := feerate.InferHtlcTimeoutFeerate(*feeRange, htlcAmt, verify)
	if err != nil {
		return err
	}
	if !found {
		return errkind.NewInternalError(
			"no feerate in [%d,%d] matches counterparty signature for htlc-timeout output %d",
			feeRange.Min, feeRange.Max, outpoint.Index)
	}

	narrowed, err := feeRange.Pin(foundFeerate)
	if err != nil {
		return err
	}
	*feeRange = narrowed

	log.Debugf("handlers: htlc-timeout at outpoint %s inferred feerate %d sat/kw",
		outpoint, foundFeerate)

	txgen.ApplyHtlcTimeoutFee(skeleton, fee)

	witness, err := scripts.OfferedHTLCWitnessTimeout(
		cand.rawScript, htlcAmt, keySet.SelfPaymentPrivKey, remoteSig, skeleton)
	if err != nil {
		return err
	}
	skeleton.TxIn[0].Witness = witness

	return store.ProposeAtBlock(handle, skeleton, cand.stub.CltvExpiry, chantype.OurHtlcTimeoutToUs)
}
