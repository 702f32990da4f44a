package resolution

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/wire"
)

// PreimageHandler is invoked when a spend notification hits an OUR_HTLC
// output that resolved_by_proposal could not account for — the preimage has
// presumably been learned from the spending transaction's witness, but the
// actual handling is left stubbed (§4.9, §9), so this is a narrow seam for
// it rather than invented semantics.
type PreimageHandler func(h Handle, spendingTx *btcwire.MsgTx) error

// Loop drives the depth/spend dispatch cycle of §4.9 on top of a Store,
// writing outbound messages to out as tracked outputs fire or fall
// irrelevant. It mirrors contractcourt's one-goroutine-per-resolver
// Resolve/IsResolved lifecycle collapsed onto a single store and a single
// blocking read point, matching the engine's cooperative, single-threaded
// concurrency model (§5).
type Loop struct {
	store *Store
	out   io.Writer

	// OnPreimage handles a spend that resolved_by_proposal could not
	// account for on an OUR_HTLC output. May be nil if no HTLCs were
	// outstanding.
	OnPreimage PreimageHandler
}

// NewLoop constructs a Loop writing outbound protocol messages to out.
func NewLoop(store *Store, out io.Writer) *Loop {
	return &Loop{store: store, out: out}
}

func (l *Loop) emit(msg wire.Message) error {
	return wire.WriteMessage(l.out, msg)
}

// HandleDepth processes a depth update for txid (§4.9's Depth update): every
// resolution spent by txid advances, and every unresolved output whose own
// origin txid is txid and whose proposal's depth requirement is now met
// fires — either broadcasting its transaction, or, absent one, marking the
// output ignored.
func (l *Loop) HandleDepth(hash chainhash.Hash, depth uint32) error {
	if err := l.store.AdvanceDepth(hash, depth); err != nil {
		return err
	}

	for _, h := range l.store.DueProposals(hash, depth) {
		out := l.store.MustGet(h)
		if out.Proposal.Tx != nil {
			log.Debugf("loop: broadcasting proposal for output %d (%s) at depth %d",
				h, out.OutputType, depth)
			if err := l.emit(&wire.OnchainBroadcastTx{Tx: out.Proposal.Tx}); err != nil {
				return err
			}
			// Resolution is recorded once the broadcast tx itself is
			// later observed as a spend of this output (ResolvedByProposal),
			// not here — the parent confirms landing independently.
			continue
		}
		if err := l.store.Ignore(h); err != nil {
			return err
		}
	}
	return nil
}

// HandleSpend processes a spend notification (§4.9's Spend notification):
// spendingTx's input[inputNum] spends some output; find the tracked output
// at that outpoint, try to attribute it to our own proposal first, and
// otherwise dispatch by OutputType.
func (l *Loop) HandleSpend(spendingTx *btcwire.MsgTx, inputNum uint32, blockheight uint32) error {
	if int(inputNum) >= len(spendingTx.TxIn) {
		return errkind.NewBadCommand("spend notification input_num %d out of range", inputNum)
	}
	prevOut := spendingTx.TxIn[inputNum].PreviousOutPoint

	h, ok := l.store.FindByOutpoint(prevOut.Hash, prevOut.Index)
	if !ok {
		return l.emit(&wire.OnchainUnwatchTx{
			Txid:       spendingTx.TxHash(),
			NumOutputs: uint32(len(spendingTx.TxOut)),
		})
	}

	resolved, err := l.store.ResolvedByProposal(h, spendingTx.TxHash())
	if err != nil {
		return err
	}
	if resolved {
		return nil
	}

	out := l.store.MustGet(h)
	switch out.OutputType {
	case chantype.OutputToUs, chantype.DelayedOutputToUs:
		log.Errorf("loop: output %d (%s) spent by an unexpected transaction %s",
			h, out.OutputType, spendingTx.TxHash())
		log.Tracef("loop: unexpected spending transaction: %v", spew.Sdump(spendingTx))
		return l.store.UnknownSpend(h, spendingTx)

	case chantype.TheirHtlc:
		// Resolved on its own timeout-depth path; an unexpected spend here
		// is simply not ours to act on.
		return nil

	case chantype.OurHtlc:
		if l.OnPreimage == nil {
			return errkind.NewInternalError(
				"spend of OUR_HTLC output %d with no preimage handler installed", h)
		}
		return l.OnPreimage(h, spendingTx)

	case chantype.FundingOutput:
		return errkind.NewInternalError(
			"funding output %d spent a second time after classification", h)

	case chantype.OutputToThem, chantype.DelayedOutputToThem:
		// Unreachable in practice: §4.3 and §4.4 track these outputs but
		// ignore them at once, and FindByOutpoint only returns unresolved
		// outputs; preserved only as a defensive guard.
		return errkind.NewInternalError(
			"ignored counterparty output %d reported spent", h)

	default:
		return errkind.NewInternalError("tracked output %d has unknown output type", h)
	}
}

// Done reports whether every tracked output has reached irrevocable
// resolution (§4.9 termination condition).
func (l *Loop) Done() bool {
	return l.store.AllIrrevocablyResolved()
}
