package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/keys"
	"github.com/lightninglabs/onchaind/wire"
)

func testKeySet(t *testing.T) keys.KeySet {
	selfPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	revocationPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return keys.KeySet{
		SelfRevocationPubKey: revocationPriv.PubKey(),
		SelfPaymentPrivKey:   selfPriv,
		OtherPaymentKey:      otherPriv.PubKey(),
	}
}

func TestMatchHtlcCandidateIsSingleShot(t *testing.T) {
	keySet := testKeySet(t)

	var hash [20]byte
	hash[0] = 0x01
	htlcs := []*wire.OnchainHtlc{
		{CltvExpiry: 500_000, PaymentHash160: hash, Owner: chantype.Local},
	}

	candidates, err := buildHtlcCandidates(htlcs, keySet)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	match := matchHtlcCandidate(candidates, candidates[0].p2wshScript)
	require.NotNil(t, match)
	require.True(t, candidates[0].used)

	again := matchHtlcCandidate(candidates, candidates[0].p2wshScript)
	require.Nil(t, again)
}

func TestBuildHtlcWitnessScriptRejectsUnknownOwner(t *testing.T) {
	keySet := testKeySet(t)
	var hash [20]byte
	_, err := buildHtlcWitnessScript(&wire.OnchainHtlc{PaymentHash160: hash, Owner: chantype.Side(99)}, keySet)
	require.Error(t, err)
}

func TestCommitmentFeeRejectsNegativeFee(t *testing.T) {
	commitTx := btcwire.NewMsgTx(2)
	commitTx.AddTxOut(&btcwire.TxOut{Value: 2000})

	_, err := commitmentFee(btcutil.Amount(1000), commitTx)
	require.Error(t, err)
}
