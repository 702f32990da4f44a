package scripts

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160"
)

func newPriv(t *testing.T) *btcec.PrivateKey {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestP2WSHWrapsScriptHash(t *testing.T) {
	redeem := []byte{0x51}
	out, err := P2WSH(redeem)
	require.NoError(t, err)
	require.Equal(t, byte(txscript.OP_0), out[0])
	require.Equal(t, byte(32), out[1])
}

func TestToLocalWitnessTimeoutVerifies(t *testing.T) {
	selfPriv := newPriv(t)
	revocationPriv := newPriv(t)

	script, err := ToLocalScript(144, selfPriv.PubKey(), revocationPriv.PubKey())
	require.NoError(t, err)

	p2wsh, err := P2WSH(script)
	require.NoError(t, err)

	const amt = btcutil.Amount(50_000)
	sweepTx := wire.NewMsgTx(2)
	sweepTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{}})
	sweepTx.AddTxOut(&wire.TxOut{Value: int64(amt) - 500, PkScript: p2wsh})

	witness, err := ToLocalWitnessTimeout(script, amt, 144, selfPriv, sweepTx)
	require.NoError(t, err)
	require.Len(t, witness, 3)

	ok, err := VerifySignature(sweepTx, 0, amt, script, witness[0], selfPriv.PubKey())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOfferedHTLCWitnessTimeoutVerifies(t *testing.T) {
	senderPriv := newPriv(t)
	receiverPriv := newPriv(t)

	var preimage [32]byte
	preimage[0] = 0x07
	paymentHash := sha256.Sum256(preimage[:])
	paymentHash160 := ripemd160Hash(paymentHash[:])

	var revokePreimage [20]byte
	revokePreimage[0] = 0xaa

	script, err := OfferedHTLCScript(senderPriv.PubKey(), receiverPriv.PubKey(),
		revokePreimage[:], paymentHash160)
	require.NoError(t, err)

	const amt = btcutil.Amount(100_000)
	sweepTx := wire.NewMsgTx(2)
	sweepTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{}})
	sweepTx.AddTxOut(&wire.TxOut{Value: int64(amt) - 663})
	sweepTx.LockTime = 600_000

	// The counterparty's signature would normally arrive over the wire
	// (OnchainInit.RemoteHtlcSignatures); here we stand in for it with the
	// receiver's own signature over the same sweep transaction.
	remoteSig, err := sign(sweepTx, 0, amt, script, receiverPriv)
	require.NoError(t, err)

	witness, err := OfferedHTLCWitnessTimeout(script, amt, senderPriv, remoteSig, sweepTx)
	require.NoError(t, err)
	require.Len(t, witness, 5)

	ok, err := VerifySignature(sweepTx, 0, amt, script, witness[1], senderPriv.PubKey())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifySignature(sweepTx, 0, amt, script, witness[2], receiverPriv.PubKey())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	signerPriv := newPriv(t)
	wrongPriv := newPriv(t)

	script, err := ToRemoteScript(signerPriv.PubKey())
	require.NoError(t, err)

	const amt = btcutil.Amount(10_000)
	sweepTx := wire.NewMsgTx(2)
	sweepTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{}})
	sweepTx.AddTxOut(&wire.TxOut{Value: int64(amt) - 200})

	witness, err := P2WPKHWitness(script, amt, signerPriv, sweepTx, 0)
	require.NoError(t, err)

	ok, err := VerifySignature(sweepTx, 0, amt, script, witness[0], wrongPriv.PubKey())
	require.NoError(t, err)
	require.False(t, ok)
}

func ripemd160Hash(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
