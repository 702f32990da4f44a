// Package resolution implements the tracked-output store (§3, §4.8) and the
// depth/spend dispatch loop (§4.9) that drives every commitment-derived
// output to irrevocable resolution. The store's lifecycle (create, propose
// once, resolve, accumulate depth) generalizes the per-resolver state
// machine of contractcourt's ContractResolver (Resolve/IsResolved/
// checkpoint-on-state-change) from one goroutine per HTLC to one
// synchronous store holding every tracked output, matching this engine's
// single-threaded, cooperative-by-I/O concurrency model (§5).
package resolution

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
	"github.com/lightninglabs/onchaind/errkind"
)

// IrrevocableDepth is the confirmation depth at which a resolution is
// considered final (§1, GLOSSARY).
const IrrevocableDepth = 100

// Handle identifies a TrackedOutput within a Store.
type Handle int

// Proposal is a proposed resolution for a TrackedOutput: a signed
// transaction plus the depth it needs (or, absent a transaction, an
// ignore-after-depth outcome) (§3).
type Proposal struct {
	Tx            *wire.MsgTx
	DepthRequired uint32
	ResultTxType  chantype.TxType
}

// Resolution is how a TrackedOutput actually got resolved (§3).
type Resolution struct {
	SpenderTxid chainhash.Hash
	Depth       uint32
	TxType      chantype.TxType
}

// TrackedOutput is the primary entity the store owns (§3).
type TrackedOutput struct {
	OriginTxType      chantype.TxType
	OriginTxid        chainhash.Hash
	OriginBlockheight uint32
	OutputIndex       uint32
	AmountSat         btcutil.Amount
	OutputType        chantype.OutputType

	Proposal   *Proposal
	Resolution *Resolution
}

// IsResolved reports whether this output has reached any resolution.
func (o *TrackedOutput) IsResolved() bool {
	return o.Resolution != nil
}

// IsIrrevocablyResolved reports whether this output is resolved and its
// resolution has reached IrrevocableDepth (§8: all_irrevocably_resolved).
func (o *TrackedOutput) IsIrrevocablyResolved() bool {
	return o.Resolution != nil && o.Resolution.Depth >= IrrevocableDepth
}

// Store is an append-only ordered collection of TrackedOutputs (§2 item 2,
// §3).
type Store struct {
	outputs []*TrackedOutput
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// NewTrackedOutput creates and tracks a new output, returning its handle
// (§4.8).
func (s *Store) NewTrackedOutput(originTxType chantype.TxType, originTxid chainhash.Hash,
	originBlockheight uint32, outnum uint32, amt btcutil.Amount,
	outputType chantype.OutputType) Handle {

	s.outputs = append(s.outputs, &TrackedOutput{
		OriginTxType:      originTxType,
		OriginTxid:        originTxid,
		OriginBlockheight: originBlockheight,
		OutputIndex:       outnum,
		AmountSat:         amt,
		OutputType:        outputType,
	})
	return Handle(len(s.outputs) - 1)
}

// get resolves a handle to its TrackedOutput, failing with InternalError on
// an invalid handle — a programmer error, never a runtime condition.
func (s *Store) get(h Handle) (*TrackedOutput, error) {
	if int(h) < 0 || int(h) >= len(s.outputs) {
		return nil, errkind.NewInternalError("invalid tracked-output handle %d", h)
	}
	return s.outputs[h], nil
}

// MustGet is like get but panics on an invalid handle; used by callers that
// already hold a handle they obtained from this same Store and cannot
// reasonably proceed without it (e.g. the depth/spend loop).
func (s *Store) MustGet(h Handle) *TrackedOutput {
	out, err := s.get(h)
	if err != nil {
		panic(err)
	}
	return out
}

// All returns every tracked output together with its handle, in creation
// order.
func (s *Store) All() []struct {
	Handle Handle
	Output *TrackedOutput
} {
	result := make([]struct {
		Handle Handle
		Output *TrackedOutput
	}, len(s.outputs))
	for i, o := range s.outputs {
		result[i] = struct {
			Handle Handle
			Output *TrackedOutput
		}{Handle(i), o}
	}
	return result
}

// Propose attaches a proposal to handle's output (§4.8). At most one
// proposal may ever be attached — attaching a second is a protocol
// programming error.
func (s *Store) Propose(h Handle, tx *wire.MsgTx, depthRequired uint32, txType chantype.TxType) error {
	out, err := s.get(h)
	if err != nil {
		return err
	}
	if out.Proposal != nil {
		return errkind.NewInternalError(
			"tracked output %d already has a proposal (set-once violated)", h)
	}
	out.Proposal = &Proposal{
		Tx:            tx,
		DepthRequired: depthRequired,
		ResultTxType:  txType,
	}
	return nil
}

// ProposeAtBlock is like Propose but expresses the requirement as an
// absolute block height, translated to a depth relative to the output's
// origin blockheight with a floor of zero (§4.8, §8).
func (s *Store) ProposeAtBlock(h Handle, tx *wire.MsgTx, blockRequired uint32, txType chantype.TxType) error {
	out, err := s.get(h)
	if err != nil {
		return err
	}

	var depthRequired uint32
	if blockRequired > out.OriginBlockheight {
		depthRequired = blockRequired - out.OriginBlockheight
	}
	return s.Propose(h, tx, depthRequired, txType)
}

// Ignore marks handle's output resolved as "ignore after depth": resolved
// by its own originating txid with tx-type SELF and depth 0 (§3, §4.8).
func (s *Store) Ignore(h Handle) error {
	out, err := s.get(h)
	if err != nil {
		return err
	}
	if out.Resolution != nil {
		return errkind.NewInternalError(
			"tracked output %d already resolved, cannot ignore again", h)
	}
	out.Resolution = &Resolution{
		SpenderTxid: out.OriginTxid,
		Depth:       0,
		TxType:      chantype.SelfTx,
	}
	return nil
}

// ResolvedByProposal marks handle's output resolved if it carries a
// proposal whose transaction's txid equals spendingTxid (§4.8, §4.9). It
// reports false, with no error and no state change, if the output's
// proposal doesn't match (or has no transaction, or doesn't exist).
func (s *Store) ResolvedByProposal(h Handle, spendingTxid chainhash.Hash) (bool, error) {
	out, err := s.get(h)
	if err != nil {
		return false, err
	}
	if out.Resolution != nil {
		return false, nil
	}
	if out.Proposal == nil || out.Proposal.Tx == nil {
		return false, nil
	}
	if out.Proposal.Tx.TxHash() != spendingTxid {
		return false, nil
	}

	out.Resolution = &Resolution{
		SpenderTxid: spendingTxid,
		Depth:       0,
		TxType:      out.Proposal.ResultTxType,
	}
	return true, nil
}

// ResolvedByOther marks handle's output resolved by a transaction other
// than its own proposal (§4.8).
func (s *Store) ResolvedByOther(h Handle, spendingTxid chainhash.Hash, txType chantype.TxType) error {
	out, err := s.get(h)
	if err != nil {
		return err
	}
	if out.Resolution != nil {
		return errkind.NewInternalError(
			"tracked output %d already resolved, cannot re-resolve", h)
	}
	out.Resolution = &Resolution{
		SpenderTxid: spendingTxid,
		Depth:       0,
		TxType:      txType,
	}
	return nil
}

// UnknownSpend records that handle's output was spent by a transaction the
// engine cannot attribute to any expected tx-type — loudly, since this
// generally means funds the engine believed were ours were taken by someone
// else (§4.8, §4.9).
func (s *Store) UnknownSpend(h Handle, spendingTx *wire.MsgTx) error {
	return s.ResolvedByOther(h, spendingTx.TxHash(), chantype.UnknownTxType)
}

// AdvanceDepth increases the depth of every resolution whose spender txid
// equals txid. Depth may only increase (§8); a regression is an internal
// programmer error rather than a runtime condition, since the parent is
// contractually obligated to deliver monotonic depth per txid (§5).
func (s *Store) AdvanceDepth(txid chainhash.Hash, depth uint32) error {
	for _, out := range s.outputs {
		if out.Resolution == nil || out.Resolution.SpenderTxid != txid {
			continue
		}
		if depth < out.Resolution.Depth {
			return errkind.NewInternalError(
				"depth for %s regressed from %d to %d", txid, out.Resolution.Depth, depth)
		}
		out.Resolution.Depth = depth
	}
	return nil
}

// DueProposals returns the handles of every unresolved output whose own
// origin txid equals txid and whose proposal's depth requirement is met at
// depth — the set that "fires" on a depth update for that txid (§4.9).
func (s *Store) DueProposals(txid chainhash.Hash, depth uint32) []Handle {
	var due []Handle
	for i, out := range s.outputs {
		if out.Resolution != nil {
			continue
		}
		if out.OriginTxid != txid {
			continue
		}
		if out.Proposal == nil {
			continue
		}
		if out.Proposal.DepthRequired <= depth {
			due = append(due, Handle(i))
		}
	}
	return due
}

// FindByOutpoint finds the unresolved tracked output at (txid, outnum), if
// any (§4.9's spend-notification lookup).
func (s *Store) FindByOutpoint(txid chainhash.Hash, outnum uint32) (Handle, bool) {
	for i, out := range s.outputs {
		if out.Resolution != nil {
			continue
		}
		if out.OriginTxid == txid && out.OutputIndex == outnum {
			return Handle(i), true
		}
	}
	return 0, false
}

// AllIrrevocablyResolved reports whether every tracked output has reached
// resolution at depth >= IrrevocableDepth (§8, §4.9 termination condition).
func (s *Store) AllIrrevocablyResolved() bool {
	for _, out := range s.outputs {
		if !out.IsIrrevocablyResolved() {
			return false
		}
	}
	return true
}
