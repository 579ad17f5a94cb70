package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/wire"
)

func dataSubmessage(b byte) wire.Submessage {
	return wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte{b}}
}

func TestNoneInputStreamBounded(t *testing.T) {
	s := NewNoneInputStream(2)
	assert.True(t, s.Push(dataSubmessage(1)))
	assert.True(t, s.Push(dataSubmessage(2)))
	assert.False(t, s.Push(dataSubmessage(3)))

	msg, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(1), msg.Payload[0])
}

func TestBestEffortInputStreamDropsOutOfOrderAndLate(t *testing.T) {
	s := NewBestEffortInputStream(8)
	require.True(t, s.Push(seqnum.SeqNum(5), dataSubmessage(5)))
	assert.False(t, s.Push(seqnum.SeqNum(5), dataSubmessage(5))) // duplicate
	assert.False(t, s.Push(seqnum.SeqNum(3), dataSubmessage(3))) // late
	require.True(t, s.Push(seqnum.SeqNum(6), dataSubmessage(6)))

	msg, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(5), msg.Payload[0])
}

func TestReliableInputStreamOrderedPopWithGap(t *testing.T) {
	// literal scenario 2: pushes 2, 0, 1 on stream 0x80; dispatch order 0,1,2
	s := NewReliableInputStream(16)
	require.True(t, s.Push(seqnum.SeqNum(2), dataSubmessage(2)))
	_, _, ok := s.Pop()
	assert.False(t, ok, "seq 0 and 1 missing, pop must block on the gap")

	require.True(t, s.Push(seqnum.SeqNum(0), dataSubmessage(0)))
	require.True(t, s.Push(seqnum.SeqNum(1), dataSubmessage(1)))

	for _, want := range []byte{0, 1, 2} {
		msg, seq, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, want, msg.Payload[0])
		assert.Equal(t, seqnum.SeqNum(want), seq)
	}

	_, _, ok = s.Pop()
	assert.False(t, ok)

	ack := s.FillAcknack()
	assert.Equal(t, seqnum.SeqNum(3), ack.FirstUnacked)
	assert.Equal(t, uint16(0), ack.Bitmap)
}

func TestReliableInputStreamRejectsOutsideWindow(t *testing.T) {
	s := NewReliableInputStream(4)
	assert.False(t, s.Push(seqnum.SeqNum(10), dataSubmessage(10))) // far beyond window
}

func TestReliableInputStreamDeduplicatesWithinAnnouncedRange(t *testing.T) {
	s := NewReliableInputStream(16)
	require.True(t, s.Push(seqnum.SeqNum(3), dataSubmessage(3)))
	assert.False(t, s.Push(seqnum.SeqNum(3), dataSubmessage(3)))
}

func TestReliableInputStreamHeartbeatUpdateFastForwards(t *testing.T) {
	s := NewReliableInputStream(16)
	s.HeartbeatUpdate(seqnum.SeqNum(5), seqnum.SeqNum(5))
	ack := s.FillAcknack()
	assert.Equal(t, seqnum.SeqNum(5), ack.FirstUnacked)
}

func TestReliableInputStreamFragmentReassembly(t *testing.T) {
	// scenario 4's inverse: three fragments reassembling one DATA submessage
	s := NewReliableInputStream(16)
	inner := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindData}, Payload: []byte("hello world")}
	raw := wire.EncodeSubmessage(nil, inner)
	// undo the EncodeSubmessage padding so the raw bytes are exactly header+payload
	raw = raw[:4+len(inner.Payload)]

	chunkSize := 5
	var seq seqnum.SeqNum
	for offset := 0; offset < len(raw); offset += chunkSize {
		end := offset + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		flags := wire.FlagLittleEndian
		last := end == len(raw)
		if last {
			flags |= wire.FlagLastFragment
		}
		frag := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindFragment, Flags: flags}, Payload: raw[offset:end]}
		require.True(t, s.Push(seq, frag))
		seq++
	}

	msg, _, ok, err := s.PopMessage()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wire.KindData, msg.Header.ID)
	assert.Equal(t, []byte("hello world"), msg.Payload)
	assert.Equal(t, 1, s.FragmentsReassembled())
}

func TestReliableInputStreamPopMessagePassesThroughNonFragment(t *testing.T) {
	s := NewReliableInputStream(16)
	require.True(t, s.Push(seqnum.SeqNum(0), dataSubmessage(9)))
	msg, seq, ok, err := s.PopMessage()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seqnum.SeqNum(0), seq)
	assert.Equal(t, byte(9), msg.Payload[0])
}

func TestReliableInputStreamHasGap(t *testing.T) {
	s := NewReliableInputStream(16)
	assert.False(t, s.HasGap())
	require.True(t, s.Push(seqnum.SeqNum(1), dataSubmessage(1)))
	assert.True(t, s.HasGap())
}
