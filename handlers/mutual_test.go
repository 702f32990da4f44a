package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/resolution"
)

func TestMutualResolvesFundingOutput(t *testing.T) {
	store := resolution.NewStore()
	handle := store.NewTrackedOutput(chantype.FundingTransaction,
		chainhash.Hash{1}, 100, 0, btcutil.Amount(500_000), chantype.FundingOutput)

	closeTxid := chainhash.Hash{2}
	require.NoError(t, Mutual(store, handle, closeTxid))

	out := store.MustGet(handle)
	require.True(t, out.IsResolved())
	require.Equal(t, closeTxid, out.Resolution.SpenderTxid)
	require.Equal(t, chantype.MutualClose, out.Resolution.TxType)
}

func TestMutualRejectsDoubleResolution(t *testing.T) {
	store := resolution.NewStore()
	handle := store.NewTrackedOutput(chantype.FundingTransaction,
		chainhash.Hash{1}, 100, 0, btcutil.Amount(500_000), chantype.FundingOutput)

	require.NoError(t, Mutual(store, handle, chainhash.Hash{2}))
	require.Error(t, Mutual(store, handle, chainhash.Hash{3}))
}
