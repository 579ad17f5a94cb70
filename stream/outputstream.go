package stream

import (
	"encoding/binary"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/wire"
)

// NoneOutputStream is the fire-and-forget output queue backing the none
// stream: no sequence bookkeeping, no retransmission.
type NoneOutputStream struct {
	mu    sync.Mutex
	depth int
	queue []wire.Message
}

// NewNoneOutputStream returns a stream bounded to depth queued messages.
func NewNoneOutputStream(depth int) *NoneOutputStream {
	return &NoneOutputStream{depth: depth}
}

// PushSubmessage frames payload as a single-submessage message on the none
// stream and enqueues it, returning false if the queue is at capacity or
// the payload would exceed the MTU.
func (s *NoneOutputStream) PushSubmessage(info Info, id wire.SubmessageKind, payload []byte) bool {
	if info.messageHeaderSize()+submessageHeaderSize+len(payload) > int(info.MTU) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.depth {
		return false
	}
	msg := wire.Message{
		Header: wire.MessageHeader{
			SessionID: info.SessionID,
			StreamID:  wire.StreamNone,
			ClientKey: info.ClientKey,
		},
		Submessages: []wire.Submessage{{Header: wire.SubmessageHeader{ID: id, Flags: wire.FlagLittleEndian}, Payload: payload}},
	}
	s.queue = append(s.queue, msg)
	return true
}

// GetNextMessage dequeues the oldest pending message.
func (s *NoneOutputStream) GetNextMessage() (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return wire.Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// BestEffortOutputStream batches submessages with an advancing sequence
// number but retains nothing for retransmission.
type BestEffortOutputStream struct {
	mu       sync.Mutex
	depth    int
	lastSent seqnum.SeqNum
	queue    []wire.Message
}

// NewBestEffortOutputStream returns a stream bounded to depth queued
// messages.
func NewBestEffortOutputStream(depth int) *BestEffortOutputStream {
	return &BestEffortOutputStream{depth: depth, lastSent: initialSeq}
}

// PushSubmessage enqueues payload as the next-sequenced message on
// streamID. An oversize payload is logged and silently dropped (returns
// true without enqueueing) per the best-effort oversize contract; a full
// queue returns false.
func (s *BestEffortOutputStream) PushSubmessage(info Info, streamID wire.StreamID, id wire.SubmessageKind, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.depth {
		return false
	}
	seq := seqnum.Add(s.lastSent, 1)
	if info.messageHeaderSize()+submessageHeaderSize+len(payload) > int(info.MTU) {
		log.WithFields(log.Fields{
			"stream_id": streamID,
			"size":      len(payload),
			"mtu":       info.MTU,
		}).Warn("best-effort submessage exceeds MTU, dropping")
		return true
	}
	msg := wire.Message{
		Header: wire.MessageHeader{
			SessionID:      info.SessionID,
			StreamID:       streamID,
			SequenceNumber: seq,
			ClientKey:      info.ClientKey,
		},
		Submessages: []wire.Submessage{{Header: wire.SubmessageHeader{ID: id, Flags: wire.FlagLittleEndian}, Payload: payload}},
	}
	s.queue = append(s.queue, msg)
	s.lastSent = seq
	return true
}

// GetNextMessage dequeues the oldest pending message.
func (s *BestEffortOutputStream) GetNextMessage() (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return wire.Message{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// ReliableOutputStream retains every unacknowledged message so it can be
// retransmitted on request, windows pushes to W_r outstanding messages, and
// fragments submessages that do not fit within the negotiated MTU.
type ReliableOutputStream struct {
	mu   sync.Mutex
	cond *sync.Cond
	wr   uint16

	firstUnacked seqnum.SeqNum
	lastUnacked  seqnum.SeqNum
	lastSent     seqnum.SeqNum
	retained     map[seqnum.SeqNum]wire.Message

	closed bool
}

// NewReliableOutputStream returns a stream with reliable window depth wr.
func NewReliableOutputStream(wr uint16) *ReliableOutputStream {
	s := &ReliableOutputStream{
		wr:           wr,
		firstUnacked: seqnum.Add(initialSeq, 1),
		lastUnacked:  initialSeq,
		lastSent:     initialSeq,
		retained:     make(map[seqnum.SeqNum]wire.Message),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *ReliableOutputStream) hasSpaceLocked() bool {
	limit := seqnum.Sub(seqnum.Add(s.firstUnacked, s.wr), 1)
	return seqnum.Less(s.lastUnacked, limit)
}

// waitForSpace blocks until the window has room for another message, the
// stream is closed, or timeout elapses. Returns false on timeout or close.
func (s *ReliableOutputStream) waitForSpace(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.hasSpaceLocked() && !s.closed && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	return s.hasSpaceLocked() && !s.closed
}

// Close marks the stream closed and wakes every waiter, which then return
// false (WouldBlock) from PushSubmessage. Used on session/client deletion
// to cancel in-flight pushes.
func (s *ReliableOutputStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func rawSubmessageBytes(id wire.SubmessageKind, payload []byte) []byte {
	raw := make([]byte, 0, submessageHeaderSize+len(payload))
	raw = append(raw, byte(id), wire.FlagLittleEndian)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(len(payload)))
	raw = append(raw, payload...)
	return raw
}

// PushSubmessage blocks until the reliable window has room (or timeout
// expires), then retains payload as one message if it fits within the
// negotiated MTU, or fragments it across several FRAGMENT-wrapped messages
// otherwise. Returns false if the window never opened before timeout.
func (s *ReliableOutputStream) PushSubmessage(info Info, streamID wire.StreamID, id wire.SubmessageKind, payload []byte, timeout time.Duration) bool {
	if !s.waitForSpace(timeout) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	headerOverhead := info.messageHeaderSize() + submessageHeaderSize
	if headerOverhead+len(payload) <= int(info.MTU) {
		seq := seqnum.Add(s.lastUnacked, 1)
		msg := wire.Message{
			Header: wire.MessageHeader{
				SessionID:      info.SessionID,
				StreamID:       streamID,
				SequenceNumber: seq,
				ClientKey:      info.ClientKey,
			},
			Submessages: []wire.Submessage{{Header: wire.SubmessageHeader{ID: id, Flags: wire.FlagLittleEndian}, Payload: payload}},
		}
		s.retained[seq] = msg
		s.lastUnacked = seq
		return true
	}

	chunkCap := int(info.MTU) - info.messageHeaderSize() - submessageHeaderSize
	if chunkCap <= 0 {
		return false
	}
	raw := rawSubmessageBytes(id, payload)
	for offset := 0; offset < len(raw); offset += chunkCap {
		end := offset + chunkCap
		if end > len(raw) {
			end = len(raw)
		}
		last := end == len(raw)
		flags := wire.FlagLittleEndian
		if last {
			flags |= wire.FlagLastFragment
		}
		seq := seqnum.Add(s.lastUnacked, 1)
		msg := wire.Message{
			Header: wire.MessageHeader{
				SessionID:      info.SessionID,
				StreamID:       streamID,
				SequenceNumber: seq,
				ClientKey:      info.ClientKey,
			},
			Submessages: []wire.Submessage{{Header: wire.SubmessageHeader{ID: wire.KindFragment, Flags: flags}, Payload: raw[offset:end]}},
		}
		s.retained[seq] = msg
		s.lastUnacked = seq
	}
	return true
}

// GetNextMessage advances last_sent and returns the next retained message
// that has not yet been sent at least once.
func (s *ReliableOutputStream) GetNextMessage() (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !seqnum.Less(s.lastSent, s.lastUnacked) {
		return wire.Message{}, false
	}
	s.lastSent = seqnum.Add(s.lastSent, 1)
	msg, ok := s.retained[s.lastSent]
	return msg, ok
}

// GetMessage looks up a specific retained sequence number, used to service
// negative acks.
func (s *ReliableOutputStream) GetMessage(seq seqnum.SeqNum) (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.retained[seq]
	return msg, ok
}

// UpdateFromAcknack applies the peer's reported first_unacked: every
// retained entry strictly below it is released and one waiter on the
// window is woken. A regression (the peer claiming to have acked messages
// not yet sent) is ignored.
func (s *ReliableOutputStream) UpdateFromAcknack(firstUnackedPeer seqnum.SeqNum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !seqnum.LessEqual(firstUnackedPeer, seqnum.Add(s.lastSent, 1)) {
		return
	}
	for seq := s.firstUnacked; seqnum.Less(seq, firstUnackedPeer); seq = seqnum.Add(seq, 1) {
		delete(s.retained, seq)
	}
	s.firstUnacked = firstUnackedPeer
	s.cond.Signal()
}

// FillHeartbeat reports the current window bounds for a HEARTBEAT
// submessage; the bool return is false when there is nothing outstanding
// to heartbeat about.
func (s *ReliableOutputStream) FillHeartbeat() (wire.HeartbeatPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.HeartbeatPayload{FirstUnacked: s.firstUnacked, LastUnacked: s.lastUnacked}, len(s.retained) > 0
}
