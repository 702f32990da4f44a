package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/onchaind/chantype"
)

// --- shared field helpers -------------------------------------------------

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > MaxMessagePayload {
		return nil, fmt.Errorf("varbytes length %d too large", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readFixed(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	if pub == nil {
		return writeFixed(w, make([]byte, 33))
	}
	return writeFixed(w, pub.SerializeCompressed())
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	buf, err := readFixed(r, 33)
	if err != nil {
		return nil, err
	}
	var zero [33]byte
	if string(buf) == string(zero[:]) {
		return nil, nil
	}
	return btcec.ParsePubKey(buf)
}

func writeTxid(w io.Writer, h chainhash.Hash) error {
	return writeFixed(w, h[:])
}

func readTxid(r io.Reader) (chainhash.Hash, error) {
	var h chainhash.Hash
	buf, err := readFixed(r, chainhash.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], buf)
	return h, nil
}

func writeTx(w io.Writer, tx *btcwire.MsgTx) error {
	if tx == nil {
		return writeVarBytes(w, nil)
	}
	pw := &byteCollector{}
	if err := tx.Serialize(pw); err != nil {
		return err
	}
	return writeVarBytes(w, pw.buf)
}

func readTx(r io.Reader) (*btcwire.MsgTx, error) {
	buf, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, nil
	}
	tx := &btcwire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return tx, nil
}

func writeSigList(w io.Writer, sigs [][]byte) error {
	if err := writeUint16(w, uint16(len(sigs))); err != nil {
		return err
	}
	for _, sig := range sigs {
		if err := writeVarBytes(w, sig); err != nil {
			return err
		}
	}
	return nil
}

func readSigList(r io.Reader) ([][]byte, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	sigs := make([][]byte, n)
	for i := range sigs {
		sig, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}
	return sigs, nil
}

func writeSide(w io.Writer, s chantype.Side) error {
	var b [1]byte
	if s == chantype.Remote {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

func readSide(r io.Reader) (chantype.Side, error) {
	buf, err := readFixed(r, 1)
	if err != nil {
		return chantype.Local, err
	}
	if buf[0] == 1 {
		return chantype.Remote, nil
	}
	return chantype.Local, nil
}

// --- inbound messages ------------------------------------------------------

// OnchainInit carries the full per-channel state the parent hands the
// engine at startup (§6, field layout per SPEC_FULL.md §12.2).
type OnchainInit struct {
	ChannelSeed                   [32]byte
	IsFunder                      bool
	ShachainState                 []byte
	RevocationsReceived           uint64
	FundingAmountSat              uint64
	RemotePerCommitPointOld       *btcec.PublicKey
	RemotePerCommitPointCur       *btcec.PublicKey
	ToSelfDelayLocal              uint16
	ToSelfDelayRemote             uint16
	FeeratePerKw                  uint32
	LocalDustLimitSat             uint64
	RemoteRevocationBasepoint     *btcec.PublicKey
	RemotePaymentBasepoint        *btcec.PublicKey
	RemoteDelayedPaymentBasepoint *btcec.PublicKey
	OurBroadcastTxid              chainhash.Hash
	LocalClosingScript            []byte
	RemoteClosingScript           []byte
	OurWalletPubKey               *btcec.PublicKey
	FunderSide                    chantype.Side
	SpendingTx                    *btcwire.MsgTx
	SpendingTxBlockheight         uint32
	HtlcStubCount                 uint16
	RemoteHtlcSignatures          [][]byte
}

func (m *OnchainInit) MsgType() MessageType { return MsgOnchainInit }

func (m *OnchainInit) Encode(w io.Writer) error {
	if err := writeFixed(w, m.ChannelSeed[:]); err != nil {
		return err
	}
	var funderByte [1]byte
	if m.IsFunder {
		funderByte[0] = 1
	}
	if err := writeFixed(w, funderByte[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.ShachainState); err != nil {
		return err
	}
	if err := writeUint64(w, m.RevocationsReceived); err != nil {
		return err
	}
	if err := writeUint64(w, m.FundingAmountSat); err != nil {
		return err
	}
	if err := writePubKey(w, m.RemotePerCommitPointOld); err != nil {
		return err
	}
	if err := writePubKey(w, m.RemotePerCommitPointCur); err != nil {
		return err
	}
	if err := writeUint16(w, m.ToSelfDelayLocal); err != nil {
		return err
	}
	if err := writeUint16(w, m.ToSelfDelayRemote); err != nil {
		return err
	}
	if err := writeUint32(w, m.FeeratePerKw); err != nil {
		return err
	}
	if err := writeUint64(w, m.LocalDustLimitSat); err != nil {
		return err
	}
	if err := writePubKey(w, m.RemoteRevocationBasepoint); err != nil {
		return err
	}
	if err := writePubKey(w, m.RemotePaymentBasepoint); err != nil {
		return err
	}
	if err := writePubKey(w, m.RemoteDelayedPaymentBasepoint); err != nil {
		return err
	}
	if err := writeTxid(w, m.OurBroadcastTxid); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.LocalClosingScript); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.RemoteClosingScript); err != nil {
		return err
	}
	if err := writePubKey(w, m.OurWalletPubKey); err != nil {
		return err
	}
	if err := writeSide(w, m.FunderSide); err != nil {
		return err
	}
	if err := writeTx(w, m.SpendingTx); err != nil {
		return err
	}
	if err := writeUint32(w, m.SpendingTxBlockheight); err != nil {
		return err
	}
	if err := writeUint16(w, m.HtlcStubCount); err != nil {
		return err
	}
	return writeSigList(w, m.RemoteHtlcSignatures)
}

func (m *OnchainInit) Decode(r io.Reader) error {
	seed, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	copy(m.ChannelSeed[:], seed)

	funderByte, err := readFixed(r, 1)
	if err != nil {
		return err
	}
	m.IsFunder = funderByte[0] == 1

	if m.ShachainState, err = readVarBytes(r); err != nil {
		return err
	}
	if m.RevocationsReceived, err = readUint64(r); err != nil {
		return err
	}
	if m.FundingAmountSat, err = readUint64(r); err != nil {
		return err
	}
	if m.RemotePerCommitPointOld, err = readPubKey(r); err != nil {
		return err
	}
	if m.RemotePerCommitPointCur, err = readPubKey(r); err != nil {
		return err
	}
	if m.ToSelfDelayLocal, err = readUint16(r); err != nil {
		return err
	}
	if m.ToSelfDelayRemote, err = readUint16(r); err != nil {
		return err
	}
	if m.FeeratePerKw, err = readUint32(r); err != nil {
		return err
	}
	if m.LocalDustLimitSat, err = readUint64(r); err != nil {
		return err
	}
	if m.RemoteRevocationBasepoint, err = readPubKey(r); err != nil {
		return err
	}
	if m.RemotePaymentBasepoint, err = readPubKey(r); err != nil {
		return err
	}
	if m.RemoteDelayedPaymentBasepoint, err = readPubKey(r); err != nil {
		return err
	}
	if m.OurBroadcastTxid, err = readTxid(r); err != nil {
		return err
	}
	if m.LocalClosingScript, err = readVarBytes(r); err != nil {
		return err
	}
	if m.RemoteClosingScript, err = readVarBytes(r); err != nil {
		return err
	}
	if m.OurWalletPubKey, err = readPubKey(r); err != nil {
		return err
	}
	if m.FunderSide, err = readSide(r); err != nil {
		return err
	}
	if m.SpendingTx, err = readTx(r); err != nil {
		return err
	}
	if m.SpendingTxBlockheight, err = readUint32(r); err != nil {
		return err
	}
	if m.HtlcStubCount, err = readUint16(r); err != nil {
		return err
	}
	m.RemoteHtlcSignatures, err = readSigList(r)
	return err
}

// OnchainHtlc describes one committed HTLC stub (§6); the parent sends
// HtlcStubCount of these immediately after OnchainInit.
type OnchainHtlc struct {
	CltvExpiry     uint32
	PaymentHash160 [20]byte
	Owner          chantype.Side
}

func (m *OnchainHtlc) MsgType() MessageType { return MsgOnchainHtlc }

func (m *OnchainHtlc) Encode(w io.Writer) error {
	if err := writeUint32(w, m.CltvExpiry); err != nil {
		return err
	}
	if err := writeFixed(w, m.PaymentHash160[:]); err != nil {
		return err
	}
	return writeSide(w, m.Owner)
}

func (m *OnchainHtlc) Decode(r io.Reader) error {
	var err error
	if m.CltvExpiry, err = readUint32(r); err != nil {
		return err
	}
	hashBuf, err := readFixed(r, 20)
	if err != nil {
		return err
	}
	copy(m.PaymentHash160[:], hashBuf)
	m.Owner, err = readSide(r)
	return err
}

// OnchainDepth reports a confirmation-depth update for txid (§4.9).
type OnchainDepth struct {
	Txid  chainhash.Hash
	Depth uint32
}

func (m *OnchainDepth) MsgType() MessageType { return MsgOnchainDepth }

func (m *OnchainDepth) Encode(w io.Writer) error {
	if err := writeTxid(w, m.Txid); err != nil {
		return err
	}
	return writeUint32(w, m.Depth)
}

func (m *OnchainDepth) Decode(r io.Reader) error {
	var err error
	if m.Txid, err = readTxid(r); err != nil {
		return err
	}
	m.Depth, err = readUint32(r)
	return err
}

// OnchainSpent reports that a watched output was spent (§4.9).
type OnchainSpent struct {
	SpendingTx  *btcwire.MsgTx
	InputNum    uint32
	Blockheight uint32
}

func (m *OnchainSpent) MsgType() MessageType { return MsgOnchainSpent }

func (m *OnchainSpent) Encode(w io.Writer) error {
	if err := writeTx(w, m.SpendingTx); err != nil {
		return err
	}
	if err := writeUint32(w, m.InputNum); err != nil {
		return err
	}
	return writeUint32(w, m.Blockheight)
}

func (m *OnchainSpent) Decode(r io.Reader) error {
	var err error
	if m.SpendingTx, err = readTx(r); err != nil {
		return err
	}
	if m.InputNum, err = readUint32(r); err != nil {
		return err
	}
	m.Blockheight, err = readUint32(r)
	return err
}

// OnchainKnownPreimage delivers a preimage for some tracked HTLC (§4.7, §9
// stub).
type OnchainKnownPreimage struct {
	Preimage [32]byte
}

func (m *OnchainKnownPreimage) MsgType() MessageType { return MsgOnchainKnownPreimage }

func (m *OnchainKnownPreimage) Encode(w io.Writer) error {
	return writeFixed(w, m.Preimage[:])
}

func (m *OnchainKnownPreimage) Decode(r io.Reader) error {
	buf, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	copy(m.Preimage[:], buf)
	return nil
}

// --- outbound messages -----------------------------------------------------

// OnchainInitReply announces the classified close state, sent once (§6).
type OnchainInitReply struct {
	State chantype.CloseType
}

func (m *OnchainInitReply) MsgType() MessageType { return MsgOnchainInitReply }

func (m *OnchainInitReply) Encode(w io.Writer) error {
	return writeUint16(w, uint16(m.State))
}

func (m *OnchainInitReply) Decode(r io.Reader) error {
	v, err := readUint16(r)
	if err != nil {
		return err
	}
	m.State = chantype.CloseType(v)
	return nil
}

// OnchainBroadcastTx asks the parent to broadcast a prepared sweep (§6).
type OnchainBroadcastTx struct {
	Tx *btcwire.MsgTx
}

func (m *OnchainBroadcastTx) MsgType() MessageType { return MsgOnchainBroadcastTx }

func (m *OnchainBroadcastTx) Encode(w io.Writer) error {
	return writeTx(w, m.Tx)
}

func (m *OnchainBroadcastTx) Decode(r io.Reader) error {
	tx, err := readTx(r)
	if err != nil {
		return err
	}
	m.Tx = tx
	return nil
}

// OnchainUnwatchTx releases watches on a tx the engine does not care about
// (§6, §4.9).
type OnchainUnwatchTx struct {
	Txid       chainhash.Hash
	NumOutputs uint32
}

func (m *OnchainUnwatchTx) MsgType() MessageType { return MsgOnchainUnwatchTx }

func (m *OnchainUnwatchTx) Encode(w io.Writer) error {
	if err := writeTxid(w, m.Txid); err != nil {
		return err
	}
	return writeUint32(w, m.NumOutputs)
}

func (m *OnchainUnwatchTx) Decode(r io.Reader) error {
	var err error
	if m.Txid, err = readTxid(r); err != nil {
		return err
	}
	m.NumOutputs, err = readUint32(r)
	return err
}

// OnchainStatusFailed is emitted immediately before a fatal exit, giving the
// parent a structured reason beyond the bare exit code (§12.6).
type OnchainStatusFailed struct {
	Kind    uint8
	Message string
}

func (m *OnchainStatusFailed) MsgType() MessageType { return MsgOnchainStatusFailed }

func (m *OnchainStatusFailed) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{m.Kind}); err != nil {
		return err
	}
	return writeVarBytes(w, []byte(m.Message))
}

func (m *OnchainStatusFailed) Decode(r io.Reader) error {
	kindBuf, err := readFixed(r, 1)
	if err != nil {
		return err
	}
	m.Kind = kindBuf[0]
	msgBuf, err := readVarBytes(r)
	if err != nil {
		return err
	}
	m.Message = string(msgBuf)
	return nil
}
