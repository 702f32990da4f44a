package wire

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/onchaind/chantype"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.MsgType(), got.MsgType())
	return got
}

func TestOnchainDepthRoundTrip(t *testing.T) {
	in := &OnchainDepth{
		Txid:  chainhash.Hash{1, 2, 3},
		Depth: 42,
	}
	out := roundTrip(t, in).(*OnchainDepth)
	require.Equal(t, in, out)
}

func TestOnchainHtlcRoundTrip(t *testing.T) {
	in := &OnchainHtlc{
		CltvExpiry: 500000,
		Owner:      chantype.Remote,
	}
	in.PaymentHash160[0] = 0xab
	out := roundTrip(t, in).(*OnchainHtlc)
	require.Equal(t, in, out)
}

func TestOnchainInitRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()

	in := &OnchainInit{
		IsFunder:                      true,
		ShachainState:                 []byte{1, 2, 3, 4},
		RevocationsReceived:           7,
		FundingAmountSat:              100_000,
		RemotePerCommitPointOld:       pub,
		RemotePerCommitPointCur:       pub,
		ToSelfDelayLocal:              144,
		ToSelfDelayRemote:             720,
		FeeratePerKw:                  2500,
		LocalDustLimitSat:             573,
		RemoteRevocationBasepoint:     pub,
		RemotePaymentBasepoint:        pub,
		RemoteDelayedPaymentBasepoint: pub,
		OurBroadcastTxid:              chainhash.Hash{9},
		LocalClosingScript:            []byte{0, 20, 1, 2, 3},
		RemoteClosingScript:           []byte{0, 20, 4, 5, 6},
		OurWalletPubKey:               pub,
		FunderSide:                    chantype.Local,
		SpendingTxBlockheight:         600_000,
		HtlcStubCount:                 2,
		RemoteHtlcSignatures:          [][]byte{{1, 2}, {3, 4, 5}},
	}
	in.ChannelSeed[0] = 0xff

	tx := btcwire.NewMsgTx(2)
	tx.AddTxIn(&btcwire.TxIn{})
	tx.AddTxOut(&btcwire.TxOut{Value: 1000, PkScript: []byte{0, 20}})
	in.SpendingTx = tx

	out := roundTrip(t, in).(*OnchainInit)
	require.Equal(t, in.ChannelSeed, out.ChannelSeed)
	require.Equal(t, in.IsFunder, out.IsFunder)
	require.Equal(t, in.ShachainState, out.ShachainState)
	require.Equal(t, in.RevocationsReceived, out.RevocationsReceived)
	require.Equal(t, in.FundingAmountSat, out.FundingAmountSat)
	require.True(t, in.RemotePerCommitPointOld.IsEqual(out.RemotePerCommitPointOld))
	require.Equal(t, in.ToSelfDelayLocal, out.ToSelfDelayLocal)
	require.Equal(t, in.RemoteHtlcSignatures, out.RemoteHtlcSignatures)
	require.Equal(t, tx.TxHash(), out.SpendingTx.TxHash())
}

func TestOnchainStatusFailedRoundTrip(t *testing.T) {
	in := &OnchainStatusFailed{Kind: 1, Message: "unmatched output"}
	out := roundTrip(t, in).(*OnchainStatusFailed)
	require.Equal(t, in, out)
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}
