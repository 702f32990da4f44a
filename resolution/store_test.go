package resolution

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
)

func txid(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestProposeIsSetOnce(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.OurUnilateral, txid(1), 100, 0, 50_000, chantype.DelayedOutputToUs)

	require.NoError(t, s.Propose(h, nil, 144, chantype.OurUnilateralToUsReturnToWallet))
	err := s.Propose(h, nil, 144, chantype.OurUnilateralToUsReturnToWallet)
	require.Error(t, err)
}

func TestProposeAtBlockFloorsAtZero(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.TheirUnilateral, txid(2), 500, 1, 10_000, chantype.TheirHtlc)

	require.NoError(t, s.ProposeAtBlock(h, nil, 480, chantype.TheirHtlcTimeoutToThem))
	out := s.MustGet(h)
	require.EqualValues(t, 0, out.Proposal.DepthRequired)

	h2 := s.NewTrackedOutput(chantype.TheirUnilateral, txid(3), 500, 1, 10_000, chantype.TheirHtlc)
	require.NoError(t, s.ProposeAtBlock(h2, nil, 620, chantype.TheirHtlcTimeoutToThem))
	out2 := s.MustGet(h2)
	require.EqualValues(t, 120, out2.Proposal.DepthRequired)
}

func TestIgnoreResolvesAsSelf(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.TheirUnilateral, txid(4), 10, 0, 1_000, chantype.OutputToUs)

	require.NoError(t, s.Ignore(h))
	out := s.MustGet(h)
	require.True(t, out.IsResolved())
	require.Equal(t, chantype.SelfTx, out.Resolution.TxType)
	require.EqualValues(t, 0, out.Resolution.Depth)

	require.Error(t, s.Ignore(h), "resolving twice must fail")
}

func TestResolvedByProposalMatchesProposalTxid(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.OurUnilateral, txid(5), 10, 0, 1_000, chantype.DelayedOutputToUs)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: txid(5)}})
	tx.AddTxOut(&wire.TxOut{Value: 900})
	require.NoError(t, s.Propose(h, tx, 144, chantype.OurUnilateralToUsReturnToWallet))

	ok, err := s.ResolvedByProposal(h, txid(99))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.ResolvedByProposal(h, tx.TxHash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chantype.OurUnilateralToUsReturnToWallet, s.MustGet(h).Resolution.TxType)
}

func TestAdvanceDepthRejectsRegression(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.OurUnilateral, txid(6), 10, 0, 1_000, chantype.DelayedOutputToUs)
	require.NoError(t, s.ResolvedByOther(h, txid(7), chantype.OurUnilateralToUsReturnToWallet))

	require.NoError(t, s.AdvanceDepth(txid(7), 5))
	require.NoError(t, s.AdvanceDepth(txid(7), 10))
	require.Error(t, s.AdvanceDepth(txid(7), 3))
}

func TestAllIrrevocablyResolvedRequiresDepthAndResolution(t *testing.T) {
	s := NewStore()
	h1 := s.NewTrackedOutput(chantype.MutualClose, txid(8), 10, 0, 1_000, chantype.FundingOutput)
	require.NoError(t, s.Ignore(h1))
	require.False(t, s.AllIrrevocablyResolved())

	require.NoError(t, s.AdvanceDepth(txid(8), 100))
	require.True(t, s.AllIrrevocablyResolved())

	h2 := s.NewTrackedOutput(chantype.OurUnilateral, txid(9), 10, 0, 1_000, chantype.DelayedOutputToUs)
	require.NoError(t, s.Propose(h2, nil, 144, chantype.OurUnilateralToUsReturnToWallet))
	require.False(t, s.AllIrrevocablyResolved())
}

func TestDueProposalsRespectsDepthRequirement(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.OurUnilateral, txid(10), 10, 0, 1_000, chantype.DelayedOutputToUs)
	require.NoError(t, s.Propose(h, nil, 144, chantype.OurUnilateralToUsReturnToWallet))

	require.Empty(t, s.DueProposals(txid(10), 100))
	due := s.DueProposals(txid(10), 144)
	require.Equal(t, []Handle{h}, due)
}

func TestFindByOutpointIgnoresResolvedOutputs(t *testing.T) {
	s := NewStore()
	h := s.NewTrackedOutput(chantype.TheirUnilateral, txid(11), 10, 2, 1_000, chantype.TheirHtlc)

	found, ok := s.FindByOutpoint(txid(11), 2)
	require.True(t, ok)
	require.Equal(t, h, found)

	require.NoError(t, s.Ignore(h))
	_, ok = s.FindByOutpoint(txid(11), 2)
	require.False(t, ok)
}
