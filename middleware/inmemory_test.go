package middleware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/xrce-agent/wire"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestInMemoryMatchesParticipantByDomainID(t *testing.T) {
	m := NewInMemory()
	a := mustJSON(t, ParticipantSpec{DomainID: 0})
	b := mustJSON(t, ParticipantSpec{DomainID: 0})
	c := mustJSON(t, ParticipantSpec{DomainID: 1})
	assert.True(t, m.Matches(1, 0, wire.ObjectKindParticipant, a, b))
	assert.False(t, m.Matches(1, 0, wire.ObjectKindParticipant, a, c))
}

func TestInMemoryMatchesTopicByName(t *testing.T) {
	m := NewInMemory()
	a := mustJSON(t, TopicSpec{Name: "chatter", TypeName: "std_msgs/String"})
	b := mustJSON(t, TopicSpec{Name: "chatter", TypeName: "other/Type"})
	assert.True(t, m.Matches(1, 0, wire.ObjectKindTopic, a, b), "topic matching is by name only")
}

func TestInMemoryWriteLoopsToMatchingReader(t *testing.T) {
	m := NewInMemory()
	writerID := wire.NewObjectID(1, wire.ObjectKindDataWriter)
	readerID := wire.NewObjectID(1, wire.ObjectKindDataReader)

	require.NoError(t, m.CreateDataWriter(1, writerID, 0, EndpointSpec{TopicName: "chatter"}))
	require.NoError(t, m.CreateDataReader(1, readerID, 0, EndpointSpec{TopicName: "chatter"}))

	received := make(chan []byte, 1)
	require.NoError(t, m.Read(1, readerID, func(payload []byte) { received <- payload }))

	require.NoError(t, m.Write(1, writerID, []byte("hello")))

	select {
	case payload := <-received:
		assert.Equal(t, []byte("hello"), payload)
	default:
		t.Fatal("reader never received the looped-back write")
	}
}

func TestInMemoryWriteSkipsNonMatchingReader(t *testing.T) {
	m := NewInMemory()
	writerID := wire.NewObjectID(1, wire.ObjectKindDataWriter)
	readerID := wire.NewObjectID(1, wire.ObjectKindDataReader)

	require.NoError(t, m.CreateDataWriter(1, writerID, 0, EndpointSpec{TopicName: "chatter"}))
	require.NoError(t, m.CreateDataReader(1, readerID, 0, EndpointSpec{TopicName: "other"}))

	received := make(chan []byte, 1)
	require.NoError(t, m.Read(1, readerID, func(payload []byte) { received <- payload }))
	require.NoError(t, m.Write(1, writerID, []byte("hello")))

	select {
	case <-received:
		t.Fatal("reader on a different topic must not receive the write")
	default:
	}
}

func TestInMemoryWriteUnknownWriter(t *testing.T) {
	m := NewInMemory()
	err := m.Write(1, wire.NewObjectID(1, wire.ObjectKindDataWriter), []byte("x"))
	assert.ErrorIs(t, err, wire.ErrUnknownReference)
}

func TestInMemoryDeleteRemovesEntity(t *testing.T) {
	m := NewInMemory()
	id := wire.NewObjectID(1, wire.ObjectKindParticipant)
	require.NoError(t, m.CreateParticipant(1, id, ParticipantSpec{DomainID: 0}))
	require.NoError(t, m.Delete(1, id))
	assert.NotContains(t, m.participants, id)

	err := m.Write(1, id, []byte("x")) // unrelated kind, but confirms no panic on deleted state
	assert.Error(t, err)
}
