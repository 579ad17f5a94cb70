package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/stream"
	"github.com/samsamfire/xrce-agent/wire"
)

func newTestSession() *Session {
	info := stream.Info{SessionID: wire.SessionID(0x81), ClientKey: 0, MTU: 512}
	return New(DefaultConfig(info))
}

func TestPushPopNoneInputMessage(t *testing.T) {
	s := newTestSession()
	msg := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte{1}}
	require.True(t, s.PushInputMessage(wire.StreamNone, 0, msg))

	got, _, ok, err := s.PopInputMessage(wire.StreamNone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(1), got.Payload[0])
}

func TestPushPopBestEffortInputMessage(t *testing.T) {
	s := newTestSession()
	streamID := wire.StreamID(0x02)
	msg := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte{7}}
	require.True(t, s.PushInputMessage(streamID, seqnum.SeqNum(0), msg))

	got, _, ok, err := s.PopInputMessage(streamID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(7), got.Payload[0])
}

func TestPushPopReliableInputMessageOrdersAcrossGap(t *testing.T) {
	s := newTestSession()
	streamID := wire.StreamReliable

	msg := func(b byte) wire.Submessage {
		return wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte{b}}
	}
	require.True(t, s.PushInputMessage(streamID, seqnum.SeqNum(1), msg(1)))
	_, _, ok, err := s.PopInputMessage(streamID)
	require.NoError(t, err)
	assert.False(t, ok, "seq 0 missing, pop blocks on the gap")

	require.True(t, s.PushInputMessage(streamID, seqnum.SeqNum(0), msg(0)))
	for _, want := range []byte{0, 1} {
		got, _, ok, err := s.PopInputMessage(streamID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got.Payload[0])
	}
}

func TestFillAcknackAndUpdateFromHeartbeatRouteToReliableInput(t *testing.T) {
	s := newTestSession()
	streamID := wire.StreamReliable
	s.UpdateFromHeartbeat(streamID, seqnum.SeqNum(3), seqnum.SeqNum(3))
	ack := s.FillAcknack(streamID)
	assert.Equal(t, seqnum.SeqNum(3), ack.FirstUnacked)
}

func TestPushOutputSubmessageAndDrainAcrossClasses(t *testing.T) {
	s := newTestSession()

	require.True(t, s.PushOutputSubmessage(wire.StreamNone, wire.KindWriteData, []byte("a"), 0))
	require.True(t, s.PushOutputSubmessage(wire.StreamID(0x02), wire.KindWriteData, []byte("b"), 0))
	require.True(t, s.PushOutputSubmessage(wire.StreamReliable, wire.KindWriteData, []byte("c"), time.Second))

	_, ok := s.GetNextOutputMessage(wire.StreamNone)
	assert.True(t, ok)
	_, ok = s.GetNextOutputMessage(wire.StreamID(0x02))
	assert.True(t, ok)
	_, ok = s.GetNextOutputMessage(wire.StreamReliable)
	assert.True(t, ok)
}

func TestGetOutputMessageServicesNegativeAckOnReliableStream(t *testing.T) {
	s := newTestSession()
	streamID := wire.StreamReliable
	for i := 0; i < 2; i++ {
		require.True(t, s.PushOutputSubmessage(streamID, wire.KindData, []byte{byte(i)}, time.Second))
	}
	_, ok := s.GetNextOutputMessage(streamID)
	require.True(t, ok)
	_, ok = s.GetNextOutputMessage(streamID)
	require.True(t, ok)

	s.UpdateFromAcknack(streamID, seqnum.SeqNum(1))
	msg, ok := s.GetOutputMessage(streamID, seqnum.SeqNum(1))
	require.True(t, ok)
	assert.Equal(t, byte(1), msg.Submessages[0].Payload[0])

	_, ok = s.GetOutputMessage(wire.StreamNone, seqnum.SeqNum(0))
	assert.False(t, ok, "non-reliable streams retain nothing to service a negative ack")
}

func TestFillHeartbeatOnlyAppliesToReliableStreams(t *testing.T) {
	s := newTestSession()
	_, ok := s.FillHeartbeat(wire.StreamID(0x02))
	assert.False(t, ok)

	require.True(t, s.PushOutputSubmessage(wire.StreamReliable, wire.KindData, []byte{1}, time.Second))
	hb, ok := s.FillHeartbeat(wire.StreamReliable)
	require.True(t, ok)
	assert.Equal(t, seqnum.SeqNum(0), hb.LastUnacked)
}

func TestListReliableOutputStreamsReflectsLazyCreation(t *testing.T) {
	s := newTestSession()
	assert.Empty(t, s.ListReliableOutputStreams())

	require.True(t, s.PushOutputSubmessage(wire.StreamReliable, wire.KindData, []byte{1}, time.Second))
	ids := s.ListReliableOutputStreams()
	require.Len(t, ids, 1)
	assert.Equal(t, wire.StreamReliable, ids[0])
}

func TestResetDiscardsEveryStream(t *testing.T) {
	s := newTestSession()
	msg := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte{1}}
	require.True(t, s.PushInputMessage(wire.StreamNone, 0, msg))
	require.True(t, s.PushOutputSubmessage(wire.StreamReliable, wire.KindData, []byte{1}, time.Second))

	s.Reset()

	_, _, ok, err := s.PopInputMessage(wire.StreamNone)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.ListReliableOutputStreams())
}
