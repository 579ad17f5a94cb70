package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
)

func TestMessageHeaderRoundTripWithClientKey(t *testing.T) {
	h := MessageHeader{
		SessionID:      SessionIDNone,
		StreamID:       StreamNone,
		SequenceNumber: seqnum.SeqNum(0),
		ClientKey:      0xAABBCCDD,
	}
	encoded := h.Encode(nil)
	assert.Len(t, encoded, 8)

	decoded, n, err := DecodeMessageHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, h, decoded)
}

func TestMessageHeaderRoundTripWithoutClientKey(t *testing.T) {
	h := MessageHeader{
		SessionID:      SessionID(0x81),
		StreamID:       StreamReliable,
		SequenceNumber: seqnum.SeqNum(42),
	}
	encoded := h.Encode(nil)
	assert.Len(t, encoded, 4)

	decoded, n, err := DecodeMessageHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, h, decoded)
}

func TestDecodeMessageHeaderUnderflow(t *testing.T) {
	_, _, err := DecodeMessageHeader([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, _, err = DecodeMessageHeader([]byte{0x00, 0x01, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestSubmessageRoundTripAndAlignment(t *testing.T) {
	sm := Submessage{
		Header:  SubmessageHeader{ID: KindWriteData, Flags: FlagLittleEndian},
		Payload: []byte{0x41, 0x42, 0x43}, // 3 bytes -> unpadded 7, aligned 8
	}
	encoded := EncodeSubmessage(nil, sm)
	assert.Len(t, encoded, 8)

	decoded, consumed, err := DecodeSubmessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, 8, consumed)
	assert.Equal(t, sm.Header.ID, decoded.Header.ID)
	assert.Equal(t, sm.Payload, decoded.Payload)
}

func TestDecodeSubmessageUnderflow(t *testing.T) {
	_, _, err := DecodeSubmessage([]byte{0x01, 0x00})
	assert.ErrorIs(t, err, ErrInvalidData)

	// header claims 10 bytes of payload but only 2 are present
	_, _, err = DecodeSubmessage([]byte{0x01, 0x00, 0x0A, 0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDecodeSubmessageNoTrailingPaddingAtEndOfBuffer(t *testing.T) {
	// 3-byte payload, unpadded length 7, but only 7 bytes supplied (no pad)
	data := []byte{byte(KindData), 0x00, 0x03, 0x00, 0x01, 0x02, 0x03}
	sm, consumed, err := DecodeSubmessage(data)
	require.NoError(t, err)
	assert.Equal(t, 7, consumed)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, sm.Payload)
}

func TestEncodeDecodeMessageMultipleSubmessages(t *testing.T) {
	msg := Message{
		Header: MessageHeader{
			SessionID:      SessionID(0x81),
			StreamID:       StreamReliable,
			SequenceNumber: seqnum.SeqNum(7),
		},
		Submessages: []Submessage{
			{Header: SubmessageHeader{ID: KindHeartbeat}, Payload: []byte{1, 2, 3, 4}},
			{Header: SubmessageHeader{ID: KindAcknack}, Payload: []byte{5, 6}},
		},
	}
	encoded := EncodeMessage(msg)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg.Header, decoded.Header)
	require.Len(t, decoded.Submessages, 2)
	assert.Equal(t, KindHeartbeat, decoded.Submessages[0].Header.ID)
	assert.Equal(t, []byte{1, 2, 3, 4}, decoded.Submessages[0].Payload)
	assert.Equal(t, KindAcknack, decoded.Submessages[1].Header.ID)
	assert.Equal(t, []byte{5, 6}, decoded.Submessages[1].Payload)
}

func TestDecodeMessageAbortsWholeDatagramOnBadSubmessage(t *testing.T) {
	msg := Message{
		Header: MessageHeader{SessionID: SessionID(0x81), StreamID: StreamReliable},
	}
	encoded := EncodeMessage(msg)
	// append a truncated submessage header claiming more payload than present
	encoded = append(encoded, byte(KindData), 0x00, 0xFF, 0x00)

	_, err := DecodeMessage(encoded)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestClientHandshakeScenario(t *testing.T) {
	// literal scenario 1 from the spec: session=0x00, stream=0x00, seq=0,
	// client_key=0xAABBCCDD, a single CREATE_CLIENT submessage.
	payload := CreateClientPayload{
		Cookie:          AgentCookie,
		VersionMajor:    AgentVersionMajor,
		VersionMinor:    0,
		Vendor:          0x0001,
		ClientKey:       0xAABBCCDD,
		RequestedSessID: SessionID(0x81),
		MTU:             512,
	}
	require.NoError(t, payload.Validate())

	msg := Message{
		Header: MessageHeader{
			SessionID: SessionIDNone,
			StreamID:  StreamNone,
			ClientKey: 0xAABBCCDD,
		},
		Submessages: []Submessage{
			{Header: SubmessageHeader{ID: KindCreateClient}, Payload: payload.Encode(nil)},
		},
	}
	encoded := EncodeMessage(msg)
	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAABBCCDD), decoded.Header.ClientKey)
	require.Len(t, decoded.Submessages, 1)

	decodedPayload, err := DecodeCreateClientPayload(decoded.Submessages[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, decodedPayload)
}
