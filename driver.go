package main

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/classify"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/handlers"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/resolution"
	"github.com/lightninglabs/onchaind/shachain"
	"github.com/lightninglabs/onchaind/wire"
)

// readInit reads the single onchain_init message followed by its
// HtlcStubCount onchain_htlc stubs (§6, §12.2).
func readInit(r io.Reader) (*wire.OnchainInit, []*wire.OnchainHtlc, error) {
	msg, err := wire.ReadMessage(r)
	if err != nil {
		return nil, nil, err
	}
	init, ok := msg.(*wire.OnchainInit)
	if !ok {
		return nil, nil, errkind.NewBadCommand(
			"expected onchain_init as the first message, got %s", msg.MsgType())
	}

	htlcs := make([]*wire.OnchainHtlc, 0, init.HtlcStubCount)
	for i := uint16(0); i < init.HtlcStubCount; i++ {
		msg, err := wire.ReadMessage(r)
		if err != nil {
			return nil, nil, err
		}
		htlc, ok := msg.(*wire.OnchainHtlc)
		if !ok {
			return nil, nil, errkind.NewBadCommand(
				"expected onchain_htlc stub %d/%d, got %s", i+1, init.HtlcStubCount, msg.MsgType())
		}
		htlcs = append(htlcs, htlc)
	}
	return init, htlcs, nil
}

// closeTxType maps a classified CloseType to the chantype.TxType the
// funding output is resolved by (§4.1, §4.2-§4.5). Both their-unilateral
// close types map to THEIR_UNILATERAL.
func closeTxType(c chantype.CloseType) chantype.TxType {
	switch c {
	case chantype.CloseMutual:
		return chantype.MutualClose
	case chantype.CloseOurUnilateral:
		return chantype.OurUnilateral
	case chantype.CloseTheirUnilateralCurrent, chantype.CloseTheirUnilateralPrevious:
		return chantype.TheirUnilateral
	case chantype.CloseTheirRevoked:
		return chantype.TheirRevokedUnilateral
	default:
		return chantype.UnknownTxType
	}
}

// run executes the full lifetime of one channel's on-chain resolution:
// the one-shot init handshake and classification (§4.1), then the
// depth/spend loop (§4.9) until every tracked output is irrevocably
// resolved (§8). in carries messages from the parent; out carries this
// engine's replies and requests.
func run(in io.Reader, out io.Writer) error {
	init, htlcs, err := readInit(in)
	if err != nil {
		return err
	}

	shachainStore := shachain.NewRevocationStore()
	if len(init.ShachainState) > 0 {
		if err := shachainStore.Decode(bytes.NewReader(init.ShachainState)); err != nil {
			return errkind.NewBadCommand("decoding shachain state: %v", err)
		}
	}

	local := keys.DeriveLocalBasepoints(init.ChannelSeed)

	result, err := classify.Classify(classify.Input{
		SpendingTx:             init.SpendingTx,
		LocalClosingScript:     init.LocalClosingScript,
		RemoteClosingScript:    init.RemoteClosingScript,
		OurBroadcastTxid:       init.OurBroadcastTxid,
		FunderSide:             init.FunderSide,
		LocalPaymentBasepoint:  local.PaymentBasePriv.PubKey(),
		RemotePaymentBasepoint: init.RemotePaymentBasepoint,
		RevocationsReceived:    init.RevocationsReceived,
		Shachain:               shachainStore,
	})
	if err != nil {
		return err
	}

	log.Infof("driver: classified close as %s (commit_num=%d)", result.CloseType, result.CommitNum)

	if len(init.SpendingTx.TxIn) == 0 {
		return errkind.NewBadCommand("funding-spend transaction has no inputs")
	}
	fundingOutpoint := init.SpendingTx.TxIn[0].PreviousOutPoint
	commitTxid := init.SpendingTx.TxHash()

	store := resolution.NewStore()
	fundingHandle := store.NewTrackedOutput(chantype.FundingTransaction,
		fundingOutpoint.Hash, 0, fundingOutpoint.Index,
		btcutil.Amount(init.FundingAmountSat), chantype.FundingOutput)

	switch result.CloseType {
	case chantype.CloseMutual:
		if err := handlers.Mutual(store, fundingHandle, commitTxid); err != nil {
			return err
		}

	case chantype.CloseOurUnilateral:
		if err := store.ResolvedByOther(fundingHandle, commitTxid, closeTxType(result.CloseType)); err != nil {
			return err
		}
		if err := handlers.OurUnilateral(store, handlers.OurUnilateralInput{
			ChannelSeed:               init.ChannelSeed,
			CommitNum:                 result.CommitNum,
			ToSelfDelay:               uint32(init.ToSelfDelayLocal),
			RemoteRevocationBasepoint: init.RemoteRevocationBasepoint,
			RemotePaymentBasepoint:    init.RemotePaymentBasepoint,
			OurWalletPubKey:           init.OurWalletPubKey,
			FeeratePerKw:              init.FeeratePerKw,
			FundingAmountSat:          btcutil.Amount(init.FundingAmountSat),
			CommitTx:                  init.SpendingTx,
			CommitTxBlockheight:       init.SpendingTxBlockheight,
			Htlcs:                     htlcs,
			RemoteHtlcSignatures:      init.RemoteHtlcSignatures,
		}); err != nil {
			return err
		}

	case chantype.CloseTheirUnilateralCurrent, chantype.CloseTheirUnilateralPrevious:
		if err := store.ResolvedByOther(fundingHandle, commitTxid, closeTxType(result.CloseType)); err != nil {
			return err
		}

		perCommitmentPoint := init.RemotePerCommitPointCur
		if result.CloseType == chantype.CloseTheirUnilateralPrevious {
			perCommitmentPoint = init.RemotePerCommitPointOld
		}

		if err := handlers.TheirUnilateral(store, handlers.TheirUnilateralInput{
			ChannelSeed:                   init.ChannelSeed,
			PerCommitmentPoint:            perCommitmentPoint,
			ToSelfDelayRemote:             uint32(init.ToSelfDelayRemote),
			RemoteRevocationBasepoint:     init.RemoteRevocationBasepoint,
			RemotePaymentBasepoint:        init.RemotePaymentBasepoint,
			RemoteDelayedPaymentBasepoint: init.RemoteDelayedPaymentBasepoint,
			OurWalletPubKey:               init.OurWalletPubKey,
			FeeratePerKw:                  init.FeeratePerKw,
			FundingAmountSat:              btcutil.Amount(init.FundingAmountSat),
			LocalDustLimitSat:             btcutil.Amount(init.LocalDustLimitSat),
			CommitTx:                      init.SpendingTx,
			CommitTxBlockheight:           init.SpendingTxBlockheight,
			Htlcs:                         htlcs,
			RemoteHtlcSignatures:          init.RemoteHtlcSignatures,
		}); err != nil {
			return err
		}

	case chantype.CloseTheirRevoked:
		if err := store.ResolvedByOther(fundingHandle, commitTxid, closeTxType(result.CloseType)); err != nil {
			return err
		}
		if err := handlers.TheirRevoked(store, fundingHandle); err != nil {
			return err
		}

	default:
		return errkind.NewInternalError("classifier returned unknown close type %v", result.CloseType)
	}

	if err := wire.WriteMessage(out, &wire.OnchainInitReply{State: result.CloseType}); err != nil {
		return err
	}

	return resolveLoop(store, in, out)
}

// resolveLoop drives the store to irrevocable resolution (§4.9), reading
// depth updates, spend notifications and out-of-band preimages from in
// until every tracked output has reached IrrevocableDepth (§8).
func resolveLoop(store *resolution.Store, in io.Reader, out io.Writer) error {
	loop := resolution.NewLoop(store, out)
	loop.OnPreimage = func(h resolution.Handle, spendingTx *btcwire.MsgTx) error {
		return handlers.LearnPreimage(store, h, [32]byte{})
	}

	for !loop.Done() {
		msg, err := wire.ReadMessage(in)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *wire.OnchainDepth:
			if err := loop.HandleDepth(m.Txid, m.Depth); err != nil {
				return err
			}

		case *wire.OnchainSpent:
			if err := loop.HandleSpend(m.SpendingTx, m.InputNum, m.Blockheight); err != nil {
				return err
			}

		case *wire.OnchainKnownPreimage:
			return errkind.NewInternalError(
				"preimage-driven htlc redemption is not implemented")

		default:
			return errkind.NewBadCommand(
				"unexpected message type %s during resolution loop", msg.MsgType())
		}
	}

	return nil
}
