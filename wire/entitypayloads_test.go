package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayloadRoundTrip(t *testing.T) {
	p := CreatePayload{
		RequestID:      7,
		ObjectID:       NewObjectID(1, ObjectKindTopic),
		ParentID:       NewObjectID(1, ObjectKindParticipant),
		Mode:           ModeReuse | ModeReplace,
		Representation: []byte("topic-profile"),
	}
	encoded := p.Encode(nil)
	decoded, err := DecodeCreatePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.True(t, decoded.Mode.Reuse())
	assert.True(t, decoded.Mode.Replace())
}

func TestCreatePayloadUnderflow(t *testing.T) {
	_, err := DecodeCreatePayload([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestCreatePayloadTruncatedRepresentation(t *testing.T) {
	p := CreatePayload{RequestID: 1, Representation: []byte("hello")}
	encoded := p.Encode(nil)
	_, err := DecodeCreatePayload(encoded[:len(encoded)-2])
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDeletePayloadRoundTrip(t *testing.T) {
	p := DeletePayload{RequestID: 3, ObjectID: NewObjectID(2, ObjectKindTopic)}
	decoded, err := DecodeDeletePayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestWriteDataPayloadRoundTrip(t *testing.T) {
	p := WriteDataPayload{ObjectID: NewObjectID(1, ObjectKindDataWriter), Sample: []byte("payload bytes")}
	decoded, err := DecodeWriteDataPayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestReadDataPayloadRoundTrip(t *testing.T) {
	p := ReadDataPayload{ObjectID: NewObjectID(1, ObjectKindDataReader), ReturnStreamID: StreamReliable, MaxSamples: 5}
	decoded, err := DecodeReadDataPayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestGetInfoPayloadRoundTrip(t *testing.T) {
	p := GetInfoPayload{RequestID: 9, ObjectID: NewObjectID(1, ObjectKindParticipant)}
	decoded, err := DecodeGetInfoPayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestInfoPayloadRoundTrip(t *testing.T) {
	p := InfoPayload{RequestID: 9, ObjectID: NewObjectID(1, ObjectKindParticipant), Info: []byte("agent-info")}
	decoded, err := DecodeInfoPayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestDataPayloadRoundTrip(t *testing.T) {
	p := DataPayload{ObjectID: NewObjectID(1, ObjectKindDataReader), Sample: []byte("sample")}
	decoded, err := DecodeDataPayload(p.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
