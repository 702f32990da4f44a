package handlers

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/resolution"
)

// Mutual resolves the funding output by MUTUAL_CLOSE (§4.2): the close
// itself already paid out to each side's closing script, so no further
// output is tracked. Following breacharbiter.go's terse dispatch for the
// close type that needs no further handling.
func Mutual(store *resolution.Store, fundingHandle resolution.Handle, closeTxid chainhash.Hash) error {
	log.Infof("handlers: mutual close, resolving funding output via %s", closeTxid)
	return store.ResolvedByOther(fundingHandle, closeTxid, chantype.MutualClose)
}
