package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/resolution"
	"github.com/lightninglabs/onchaind/scripts"
	"github.com/lightninglabs/onchaind/shachain"
	"github.com/lightninglabs/onchaind/txgen"
	"github.com/lightninglabs/onchaind/wire"
)

// TestOurUnilateralMatchesEveryOutputKind builds a realistic commitment
// transaction for our own broadcast close with one of each output kind (§4.3)
// and checks that OurUnilateral tracks and resolves/proposes each correctly.
func TestOurUnilateralMatchesEveryOutputKind(t *testing.T) {
	var channelSeed [32]byte
	channelSeed[0] = 0x01

	local := keys.DeriveLocalBasepoints(channelSeed)

	remoteRevocationPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remotePaymentPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	const commitNum = uint64(0)
	shachainSeed := keys.DeriveShachainSeed(channelSeed)
	secret := shachain.NewRevocationProducer(shachainSeed).AtIndex(commitNum)
	perCommitmentPoint := keys.DerivePerCommitmentPoint(secret)

	keySet := keys.DeriveKeySet(local, remoteRevocationPriv.PubKey(), remotePaymentPriv.PubKey(),
		perCommitmentPoint, chantype.Local)

	const toSelfDelay = uint32(144)
	toLocalRaw, err := scripts.ToLocalScript(
		toSelfDelay, keySet.SelfDelayedPaymentPrivKey.PubKey(), keySet.SelfRevocationPubKey)
	require.NoError(t, err)
	toLocalP2WSH, err := scripts.P2WSH(toLocalRaw)
	require.NoError(t, err)

	toRemoteScript, err := scripts.ToRemoteScript(keySet.OtherPaymentKey)
	require.NoError(t, err)

	var paymentHashOurs, paymentHashTheirs [20]byte
	paymentHashOurs[0] = 0xaa
	paymentHashTheirs[0] = 0xbb
	var revokeHash [20]byte
	revokeHash[0] = 0xcc

	htlcs := []*wire.OnchainHtlc{
		{CltvExpiry: 600_000, PaymentHash160: paymentHashOurs, Owner: chantype.Local},
		{CltvExpiry: 610_000, PaymentHash160: paymentHashTheirs, Owner: chantype.Remote},
	}

	offeredRaw, err := scripts.OfferedHTLCScript(
		keySet.SelfPaymentPrivKey.PubKey(), keySet.OtherPaymentKey,
		revokeHash160(keySet.SelfRevocationPubKey), paymentHashOurs[:])
	require.NoError(t, err)
	offeredP2WSH, err := scripts.P2WSH(offeredRaw)
	require.NoError(t, err)

	receivedRaw, err := scripts.ReceivedHTLCScript(
		610_000, keySet.OtherPaymentKey, keySet.SelfPaymentPrivKey.PubKey(),
		revokeHash160(keySet.SelfRevocationPubKey), paymentHashTheirs[:])
	require.NoError(t, err)
	receivedP2WSH, err := scripts.P2WSH(receivedRaw)
	require.NoError(t, err)

	const (
		toLocalAmt  = btcutil.Amount(500_000)
		toRemoteAmt = btcutil.Amount(300_000)
		htlcAmt     = btcutil.Amount(100_000)
		feeratePerKw = uint32(2000)
		commitFee    = btcutil.Amount(2136) // 2000 * (724+172*2) / 1000, two untrimmed htlcs
	)

	commitTx := btcwire.NewMsgTx(2)
	commitTx.AddTxIn(&btcwire.TxIn{})
	commitTx.AddTxOut(&btcwire.TxOut{Value: int64(toLocalAmt), PkScript: toLocalP2WSH})
	commitTx.AddTxOut(&btcwire.TxOut{Value: int64(toRemoteAmt), PkScript: toRemoteScript})
	commitTx.AddTxOut(&btcwire.TxOut{Value: int64(htlcAmt), PkScript: offeredP2WSH})
	commitTx.AddTxOut(&btcwire.TxOut{Value: int64(htlcAmt), PkScript: receivedP2WSH})

	fundingAmount := toLocalAmt + toRemoteAmt + htlcAmt + htlcAmt + commitFee

	// Stand in for the counterparty's co-signature over the HTLC-timeout
	// skeleton at the single feerate the seeded [min,max] range collapses to.
	outpoint := btcwire.OutPoint{Hash: commitTx.TxHash(), Index: 2}
	skeletonForSig := txgen.HtlcTimeoutTx(outpoint, htlcAmt, 600_000, toLocalP2WSH)
	txgen.ApplyHtlcTimeoutFee(skeletonForSig, txgen.HtlcTimeoutFee(feeratePerKw))
	remoteTweakedPriv := keys.DeriveSimplePrivKey(remotePaymentPriv, perCommitmentPoint)
	remoteWitness, err := scripts.ToLocalWitnessTimeout(offeredRaw, htlcAmt, 0, remoteTweakedPriv, skeletonForSig)
	require.NoError(t, err)
	remoteSig := remoteWitness[0]

	store := resolution.NewStore()

	in := OurUnilateralInput{
		ChannelSeed:               channelSeed,
		CommitNum:                 commitNum,
		ToSelfDelay:               toSelfDelay,
		RemoteRevocationBasepoint: remoteRevocationPriv.PubKey(),
		RemotePaymentBasepoint:    remotePaymentPriv.PubKey(),
		OurWalletPubKey:           remotePaymentPriv.PubKey(), // any valid key stands in for our wallet
		FeeratePerKw:              feeratePerKw,
		FundingAmountSat:          fundingAmount,
		CommitTx:                  commitTx,
		CommitTxBlockheight:       500_000,
		Htlcs:                     htlcs,
		RemoteHtlcSignatures:      [][]byte{remoteSig},
	}

	err = OurUnilateral(store, in)
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 4)

	toLocalOut := all[0].Output
	require.Equal(t, chantype.DelayedOutputToUs, toLocalOut.OutputType)
	require.False(t, toLocalOut.IsResolved())
	require.NotNil(t, toLocalOut.Proposal)
	require.Equal(t, toSelfDelay, toLocalOut.Proposal.DepthRequired)
	require.Equal(t, chantype.OurUnilateralToUsReturnToWallet, toLocalOut.Proposal.ResultTxType)

	toRemoteOut := all[1].Output
	require.Equal(t, chantype.OutputToThem, toRemoteOut.OutputType)
	require.True(t, toRemoteOut.IsResolved())
	require.Equal(t, chantype.SelfTx, toRemoteOut.Resolution.TxType)

	ourHtlcOut := all[2].Output
	require.Equal(t, chantype.OurHtlc, ourHtlcOut.OutputType)
	require.NotNil(t, ourHtlcOut.Proposal)
	require.NotNil(t, ourHtlcOut.Proposal.Tx)
	require.Equal(t, chantype.OurHtlcTimeoutToUs, ourHtlcOut.Proposal.ResultTxType)

	theirHtlcOut := all[3].Output
	require.Equal(t, chantype.TheirHtlc, theirHtlcOut.OutputType)
	require.NotNil(t, theirHtlcOut.Proposal)
	require.Nil(t, theirHtlcOut.Proposal.Tx)
	require.Equal(t, chantype.TheirHtlcTimeoutToThem, theirHtlcOut.Proposal.ResultTxType)
}

func TestOurUnilateralRejectsUnmatchedOutput(t *testing.T) {
	var channelSeed [32]byte
	channelSeed[0] = 0x02

	local := keys.DeriveLocalBasepoints(channelSeed)
	remoteRevocationPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	remotePaymentPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	shachainSeed := keys.DeriveShachainSeed(channelSeed)
	secret := shachain.NewRevocationProducer(shachainSeed).AtIndex(0)
	perCommitmentPoint := keys.DerivePerCommitmentPoint(secret)

	keySet := keys.DeriveKeySet(local, remoteRevocationPriv.PubKey(), remotePaymentPriv.PubKey(),
		perCommitmentPoint, chantype.Local)
	_ = keySet

	commitTx := btcwire.NewMsgTx(2)
	commitTx.AddTxIn(&btcwire.TxIn{})
	commitTx.AddTxOut(&btcwire.TxOut{Value: 1000, PkScript: []byte{0x51}})

	store := resolution.NewStore()
	in := OurUnilateralInput{
		ChannelSeed:               channelSeed,
		CommitNum:                 0,
		ToSelfDelay:               144,
		RemoteRevocationBasepoint: remoteRevocationPriv.PubKey(),
		RemotePaymentBasepoint:    remotePaymentPriv.PubKey(),
		OurWalletPubKey:           remotePaymentPriv.PubKey(),
		FeeratePerKw:              2000,
		FundingAmountSat:          1000,
		CommitTx:                  commitTx,
		CommitTxBlockheight:       100,
	}

	err = OurUnilateral(store, in)
	require.Error(t, err)
}
