// Package wire implements the length-prefixed message protocol the engine
// speaks with its parent over file descriptor 0, generalizing the
// header/payload split used by the Lightning peer wire protocol
// (lnwire.WriteMessage/ReadMessage) to a bare, unauthenticated pipe: each
// message is self-delimited by an explicit length prefix rather than relying
// on a framed transport underneath.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType tags the wire format of a message's payload.
type MessageType uint16

const (
	MsgOnchainInit MessageType = iota
	MsgOnchainHtlc
	MsgOnchainDepth
	MsgOnchainSpent
	MsgOnchainKnownPreimage
	MsgOnchainInitReply
	MsgOnchainBroadcastTx
	MsgOnchainUnwatchTx
	MsgOnchainStatusFailed
)

// String implements fmt.Stringer for log-friendly message names.
func (t MessageType) String() string {
	switch t {
	case MsgOnchainInit:
		return "onchain_init"
	case MsgOnchainHtlc:
		return "onchain_htlc"
	case MsgOnchainDepth:
		return "onchain_depth"
	case MsgOnchainSpent:
		return "onchain_spent"
	case MsgOnchainKnownPreimage:
		return "onchain_known_preimage"
	case MsgOnchainInitReply:
		return "onchain_init_reply"
	case MsgOnchainBroadcastTx:
		return "onchain_broadcast_tx"
	case MsgOnchainUnwatchTx:
		return "onchain_unwatch_tx"
	case MsgOnchainStatusFailed:
		return "onchain_status_failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// MaxMessagePayload bounds the length prefix against a hostile or corrupt
// parent; no message in this protocol legitimately approaches this size.
const MaxMessagePayload = 32 * 1024 * 1024

// Message is implemented by every concrete wire type in this package.
type Message interface {
	// MsgType reports this message's wire type tag.
	MsgType() MessageType

	// Encode serializes the payload (not the length prefix or type tag)
	// to w.
	Encode(w io.Writer) error

	// Decode deserializes the payload (not the length prefix or type
	// tag) from r.
	Decode(r io.Reader) error
}

// makeEmptyMessage returns a zero-valued concrete message for the given
// type tag, ready to have Decode called on it.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgOnchainInit:
		return &OnchainInit{}, nil
	case MsgOnchainHtlc:
		return &OnchainHtlc{}, nil
	case MsgOnchainDepth:
		return &OnchainDepth{}, nil
	case MsgOnchainSpent:
		return &OnchainSpent{}, nil
	case MsgOnchainKnownPreimage:
		return &OnchainKnownPreimage{}, nil
	case MsgOnchainInitReply:
		return &OnchainInitReply{}, nil
	case MsgOnchainBroadcastTx:
		return &OnchainBroadcastTx{}, nil
	case MsgOnchainUnwatchTx:
		return &OnchainUnwatchTx{}, nil
	case MsgOnchainStatusFailed:
		return &OnchainStatusFailed{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %d", msgType)
	}
}

// WriteMessage frames msg as: 4-byte big-endian payload length (counting the
// 2-byte type tag), 2-byte big-endian type tag, then the encoded payload.
func WriteMessage(w io.Writer, msg Message) error {
	var payload []byte
	pw := &byteCollector{}
	if err := msg.Encode(pw); err != nil {
		return fmt.Errorf("encode %v: %w", msg.MsgType(), err)
	}
	payload = pw.buf

	totalLen := 2 + len(payload)
	if totalLen > MaxMessagePayload {
		return fmt.Errorf("message %v too large: %d bytes", msg.MsgType(), totalLen)
	}

	var hdr [6]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(totalLen))
	binary.BigEndian.PutUint16(hdr[4:6], uint16(msg.MsgType()))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadMessage reads one length-prefixed message from r and returns its
// decoded concrete type.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	totalLen := binary.BigEndian.Uint32(lenBuf[:])
	if totalLen < 2 || totalLen > MaxMessagePayload {
		return nil, fmt.Errorf("invalid message length %d", totalLen)
	}

	var typeBuf [2]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, err
	}
	msgType := MessageType(binary.BigEndian.Uint16(typeBuf[:]))

	payload := make([]byte, totalLen-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("decode %v: %w", msgType, err)
	}
	return msg, nil
}

// byteCollector is a minimal io.Writer that accumulates bytes in memory,
// used to measure a message's encoded length before writing its header.
type byteCollector struct {
	buf []byte
}

func (b *byteCollector) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}
