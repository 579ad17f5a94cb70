package proxyclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/xrce-agent/wire"
)

type fakeMiddleware struct {
	created []wire.ObjectID
	deleted []wire.ObjectID
	failOn  map[wire.ObjectID]error
}

func newFakeMiddleware() *fakeMiddleware {
	return &fakeMiddleware{failOn: make(map[wire.ObjectID]error)}
}

func (m *fakeMiddleware) Create(clientKey uint32, id, parent wire.ObjectID, rep Representation) error {
	if err, ok := m.failOn[id]; ok {
		return err
	}
	m.created = append(m.created, id)
	return nil
}

func (m *fakeMiddleware) Delete(clientKey uint32, id wire.ObjectID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *fakeMiddleware) Matches(clientKey uint32, id wire.ObjectID, existing, candidate Representation) bool {
	return string(existing.Data) == string(candidate.Data)
}

func participantID(serial uint16) wire.ObjectID {
	return wire.NewObjectID(serial, wire.ObjectKindParticipant)
}

func TestCreateNewParticipant(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	id := participantID(1)
	status, err := tree.Create(CreationMode{}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("p0")})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)
	assert.Contains(t, mw.created, id)
}

func TestCreateRejectsObjectIDKindMismatch(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	id := participantID(1)
	_, err := tree.Create(CreationMode{}, id, 0, Representation{Kind: wire.ObjectKindTopic, Data: []byte("t0")})
	assert.ErrorIs(t, err, wire.ErrInvalidData)
}

func TestCreateWithoutExpectedParentFails(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	topicID := wire.NewObjectID(1, wire.ObjectKindTopic)
	_, err := tree.Create(CreationMode{}, topicID, participantID(99), Representation{Kind: wire.ObjectKindTopic, Data: []byte("t0")})
	assert.ErrorIs(t, err, wire.ErrInvalidData)
}

func TestCreationModeMatrix(t *testing.T) {
	// literal scenario 5: participant 0x0001 exists with domain 0 ("d0");
	// REUSE+REPLACE with the same representation returns OK_Matched without
	// recreating; with a different representation returns OK and recreates.
	mw := newFakeMiddleware()
	tree := New(1, mw)
	id := participantID(1)
	status, err := tree.Create(CreationMode{}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d0")})
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, status)

	status, err = tree.Create(CreationMode{Reuse: false, Replace: false}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d0")})
	require.Error(t, err)
	assert.Equal(t, wire.StatusAlreadyExists, status)

	status, err = tree.Create(CreationMode{Reuse: true, Replace: true}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d0")})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOKMatched, status)

	status, err = tree.Create(CreationMode{Reuse: true, Replace: false}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d1")})
	require.Error(t, err)
	assert.Equal(t, wire.StatusMismatch, status)

	status, err = tree.Create(CreationMode{Reuse: true, Replace: true}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d1")})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)
	assert.Contains(t, mw.deleted, id, "the mismatched entity must be torn down before recreation")
}

func TestCreateReplaceWithoutReuseAlwaysRecreates(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	id := participantID(1)
	_, err := tree.Create(CreationMode{}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d0")})
	require.NoError(t, err)

	status, err := tree.Create(CreationMode{Reuse: false, Replace: true}, id, 0, Representation{Kind: wire.ObjectKindParticipant, Data: []byte("d0")})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)
	assert.Contains(t, mw.deleted, id)
}

func TestDeleteObjectCascadesToDescendants(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	participant := participantID(1)
	topic := wire.NewObjectID(1, wire.ObjectKindTopic)
	publisher := wire.NewObjectID(1, wire.ObjectKindPublisher)
	writer := wire.NewObjectID(1, wire.ObjectKindDataWriter)

	_, err := tree.Create(CreationMode{}, participant, 0, Representation{Kind: wire.ObjectKindParticipant})
	require.NoError(t, err)
	_, err = tree.Create(CreationMode{}, topic, participant, Representation{Kind: wire.ObjectKindTopic})
	require.NoError(t, err)
	_, err = tree.Create(CreationMode{}, publisher, participant, Representation{Kind: wire.ObjectKindPublisher})
	require.NoError(t, err)
	_, err = tree.Create(CreationMode{}, writer, publisher, Representation{Kind: wire.ObjectKindDataWriter})
	require.NoError(t, err)

	status, err := tree.DeleteObject(participant)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)

	for _, id := range []wire.ObjectID{participant, topic, publisher, writer} {
		_, _, ok := tree.Get(id)
		assert.False(t, ok, "every descendant must be gone after deleting its container")
	}
}

func TestDeleteObjectUnknownReference(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	status, err := tree.DeleteObject(participantID(1))
	assert.ErrorIs(t, err, wire.ErrUnknownReference)
	assert.Equal(t, wire.StatusUnknownReference, status)
}

func TestDeleteAllRemovesEveryObject(t *testing.T) {
	mw := newFakeMiddleware()
	tree := New(1, mw)
	participant := participantID(1)
	topic := wire.NewObjectID(1, wire.ObjectKindTopic)
	_, err := tree.Create(CreationMode{}, participant, 0, Representation{Kind: wire.ObjectKindParticipant})
	require.NoError(t, err)
	_, err = tree.Create(CreationMode{}, topic, participant, Representation{Kind: wire.ObjectKindTopic})
	require.NoError(t, err)

	tree.DeleteAll()

	_, _, ok := tree.Get(participant)
	assert.False(t, ok)
	_, _, ok = tree.Get(topic)
	assert.False(t, ok)
}
