package handlers

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/resolution"
)

func TestTheirRevokedIsUnimplemented(t *testing.T) {
	store := resolution.NewStore()
	handle := store.NewTrackedOutput(chantype.FundingTransaction,
		chainhash.Hash{5}, 300, 0, btcutil.Amount(500_000), chantype.FundingOutput)

	err := TheirRevoked(store, handle)
	require.Error(t, err)
}
