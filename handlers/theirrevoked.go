package handlers

import (
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/resolution"
)

// TheirRevoked would sweep every output of a commitment the counterparty
// broadcast after revoking it, using the revocation private key shachain
// yields for that commit_num to claim both the to-local penalty output and
// any HTLC output via ToLocalWitnessRevoke (§4.5). Left as an explicit stub:
// a breach is a security event this engine should surface loudly rather than
// silently resolve, and the store has nowhere else to route the penalty
// decision (whether to claim the whole commitment or hand it to a separate
// watchtower) — an open design question left unanswered for now.
func TheirRevoked(store *resolution.Store, fundingHandle resolution.Handle) error {
	return errkind.NewInternalError("breach handling (their_revoked) is not implemented")
}
