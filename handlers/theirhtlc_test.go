package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/resolution"
	"github.com/lightninglabs/onchaind/wire"
)

func TestTheirHtlcProposesNilTxAtCltvExpiry(t *testing.T) {
	store := resolution.NewStore()
	handle := store.NewTrackedOutput(chantype.TheirUnilateral,
		chainhash.Hash{4}, 200, 0, btcutil.Amount(10_000), chantype.TheirHtlc)

	stub := &wire.OnchainHtlc{CltvExpiry: 250, Owner: chantype.Remote}
	require.NoError(t, TheirHtlc(store, handle, stub))

	out := store.MustGet(handle)
	require.NotNil(t, out.Proposal)
	require.Nil(t, out.Proposal.Tx)
	require.Equal(t, uint32(50), out.Proposal.DepthRequired)
	require.Equal(t, chantype.TheirHtlcTimeoutToThem, out.Proposal.ResultTxType)
}

func TestLearnPreimageIsUnimplemented(t *testing.T) {
	store := resolution.NewStore()
	handle := store.NewTrackedOutput(chantype.TheirUnilateral,
		chainhash.Hash{4}, 200, 0, btcutil.Amount(10_000), chantype.TheirHtlc)

	err := LearnPreimage(store, handle, [32]byte{0xaa})
	require.Error(t, err)
}
