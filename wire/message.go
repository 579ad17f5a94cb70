// Package wire implements the bounded serializer/deserializer for the
// message header, submessage header, and submessage payloads exchanged
// between a client and the agent.
package wire

import (
	"encoding/binary"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
)

// MessageHeader precedes one or more submessages in every datagram.
type MessageHeader struct {
	SessionID      SessionID
	StreamID       StreamID
	SequenceNumber seqnum.SeqNum
	// ClientKey is only meaningful (and only encoded) when SessionID.HasClientKey().
	ClientKey uint32
}

// HeaderSize returns the encoded size of h in bytes.
func (h MessageHeader) HeaderSize() int {
	if h.SessionID.HasClientKey() {
		return 8
	}
	return 4
}

// Encode appends the wire encoding of h to dst and returns the result.
func (h MessageHeader) Encode(dst []byte) []byte {
	dst = append(dst, byte(h.SessionID), byte(h.StreamID))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(h.SequenceNumber))
	if h.SessionID.HasClientKey() {
		dst = binary.LittleEndian.AppendUint32(dst, h.ClientKey)
	}
	return dst
}

// DecodeMessageHeader reads a MessageHeader from the front of data,
// returning the header and the number of bytes consumed. Fails with
// ErrInvalidData on underflow.
func DecodeMessageHeader(data []byte) (MessageHeader, int, error) {
	if len(data) < 4 {
		return MessageHeader{}, 0, ErrInvalidData
	}
	h := MessageHeader{
		SessionID:      SessionID(data[0]),
		StreamID:       StreamID(data[1]),
		SequenceNumber: seqnum.SeqNum(binary.LittleEndian.Uint16(data[2:4])),
	}
	consumed := 4
	if h.SessionID.HasClientKey() {
		if len(data) < 8 {
			return MessageHeader{}, 0, ErrInvalidData
		}
		h.ClientKey = binary.LittleEndian.Uint32(data[4:8])
		consumed = 8
	}
	return h, consumed, nil
}

// SubmessageHeader precedes each submessage's payload.
type SubmessageHeader struct {
	ID     SubmessageKind
	Flags  byte
	Length uint16
}

const submessageHeaderSize = 4

// Submessage is a single TLV record within a message.
type Submessage struct {
	Header  SubmessageHeader
	Payload []byte
}

// IsLastFragment reports whether the last-fragment flag is set.
func (s Submessage) IsLastFragment() bool {
	return s.Header.Flags&FlagLastFragment != 0
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// EncodeSubmessage appends the wire encoding of sm to dst, padding with
// zero bytes so the submessage occupies a 4-byte-aligned span.
func EncodeSubmessage(dst []byte, sm Submessage) []byte {
	sm.Header.Length = uint16(len(sm.Payload))
	dst = append(dst, byte(sm.Header.ID), sm.Header.Flags)
	dst = binary.LittleEndian.AppendUint16(dst, sm.Header.Length)
	dst = append(dst, sm.Payload...)
	unpadded := submessageHeaderSize + len(sm.Payload)
	for n := align4(unpadded) - unpadded; n > 0; n-- {
		dst = append(dst, 0)
	}
	return dst
}

// DecodeSubmessage reads one submessage from the front of data, returning
// it and the number of bytes consumed (including alignment padding, when
// enough trailing bytes remain to hold it). Fails with ErrInvalidData on
// underflow.
func DecodeSubmessage(data []byte) (Submessage, int, error) {
	if len(data) < submessageHeaderSize {
		return Submessage{}, 0, ErrInvalidData
	}
	length := binary.LittleEndian.Uint16(data[2:4])
	unpadded := submessageHeaderSize + int(length)
	if len(data) < unpadded {
		return Submessage{}, 0, ErrInvalidData
	}
	sm := Submessage{
		Header: SubmessageHeader{
			ID:     SubmessageKind(data[0]),
			Flags:  data[1],
			Length: length,
		},
		Payload: data[submessageHeaderSize:unpadded],
	}
	consumed := unpadded
	if aligned := align4(unpadded); aligned <= len(data) {
		consumed = aligned
	}
	return sm, consumed, nil
}

// Message is a decoded message header plus its submessages.
type Message struct {
	Header      MessageHeader
	Submessages []Submessage
}

// EncodeMessage serializes a full message: header followed by each
// submessage, 4-byte aligned.
func EncodeMessage(msg Message) []byte {
	buf := msg.Header.Encode(make([]byte, 0, msg.Header.HeaderSize()))
	for _, sm := range msg.Submessages {
		buf = EncodeSubmessage(buf, sm)
	}
	return buf
}

// DecodeMessage parses a complete datagram into a header and its
// submessages. Parsing errors abort the whole datagram with ErrInvalidData;
// a partially decoded Message is never returned on error.
func DecodeMessage(data []byte) (Message, error) {
	header, n, err := DecodeMessageHeader(data)
	if err != nil {
		return Message{}, err
	}
	rest := data[n:]
	var subs []Submessage
	for len(rest) > 0 {
		sm, consumed, err := DecodeSubmessage(rest)
		if err != nil {
			return Message{}, err
		}
		subs = append(subs, sm)
		rest = rest[consumed:]
	}
	return Message{Header: header, Submessages: subs}, nil
}
