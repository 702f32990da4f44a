package handlers

import (
	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/resolution"
	"github.com/lightninglabs/onchaind/wire"
)

// TheirHtlc resolves an HTLC the counterparty offered to us, on whichever
// commitment it was found (§4.7): absent a preimage, there is nothing to do
// but wait for its absolute timeout to pass on their side and let it go —
// proposing no transaction means the depth loop simply ignores the output
// once the commitment's depth reaches cltv_expiry minus the commitment's
// blockheight, i.e. at block cltv_expiry (resolution.Loop.HandleDepth's
// nil-tx branch).
func TheirHtlc(store *resolution.Store, handle resolution.Handle, stub *wire.OnchainHtlc) error {
	return store.ProposeAtBlock(handle, nil, stub.CltvExpiry, chantype.TheirHtlcTimeoutToThem)
}

// LearnPreimage would redeem a their_htlc output once a preimage arrives out
// of band (OnchainKnownPreimage), building either an HTLC-success second
// stage (on our own commitment) or a direct redeem (on the counterparty's),
// following ReceivedHTLCWitnessSuccess / OfferedHTLCWitnessRedeem. It
// builds neither: it always returns an InternalError.
func LearnPreimage(store *resolution.Store, handle resolution.Handle, preimage [32]byte) error {
	return errkind.NewInternalError(
		"preimage-driven htlc redemption for tracked output %d is not implemented", handle)
}
