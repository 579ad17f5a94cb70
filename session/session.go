// Package session aggregates the per-client stream state: one none stream,
// and lazily created best-effort/reliable streams keyed by stream id, for
// both the input and output directions.
package session

import (
	"sync"
	"time"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/stream"
	"github.com/samsamfire/xrce-agent/wire"
)

// Config bounds the depths and windows of the streams a session creates
// lazily. Defaults mirror W_b/W_r from the wire protocol's design notes.
type Config struct {
	Info stream.Info

	NoneInputDepth       int
	BestEffortInputDepth int
	ReliableInputWindow  uint16

	NoneOutputDepth       int
	BestEffortOutputDepth int
	ReliableOutputWindow  uint16
}

// DefaultConfig returns reasonable stream bounds for info.
func DefaultConfig(info stream.Info) Config {
	return Config{
		Info:                  info,
		NoneInputDepth:        16,
		BestEffortInputDepth:  16,
		ReliableInputWindow:   16,
		NoneOutputDepth:       16,
		BestEffortOutputDepth: 16,
		ReliableOutputWindow:  16,
	}
}

// Session owns every input/output stream for one client. Input streams are
// guarded by one mutex per reliability class (none/best-effort/reliable);
// output streams use a per-stream mutex for none/best-effort and a
// reader-writer lock over the reliable-output map, shared for the common
// path of reading an already-created stream and exclusive only when a new
// one must be created.
type Session struct {
	cfg Config

	noneInputMu sync.Mutex
	noneInput   *stream.NoneInputStream

	bestEffortInputMu sync.Mutex
	bestEffortInput   map[wire.StreamID]*stream.BestEffortInputStream

	reliableInputMu sync.Mutex
	reliableInput   map[wire.StreamID]*stream.ReliableInputStream

	noneOutputMu sync.Mutex
	noneOutput   *stream.NoneOutputStream

	bestEffortOutputMu sync.Mutex
	bestEffortOutput   map[wire.StreamID]*stream.BestEffortOutputStream

	reliableOutputMu sync.RWMutex
	reliableOutput   map[wire.StreamID]*stream.ReliableOutputStream
}

// New returns a session with no streams created yet; every stream is
// created lazily on first use of its stream id.
func New(cfg Config) *Session {
	return &Session{
		cfg:              cfg,
		bestEffortInput:  make(map[wire.StreamID]*stream.BestEffortInputStream),
		reliableInput:    make(map[wire.StreamID]*stream.ReliableInputStream),
		bestEffortOutput: make(map[wire.StreamID]*stream.BestEffortOutputStream),
		reliableOutput:   make(map[wire.StreamID]*stream.ReliableOutputStream),
	}
}

func (s *Session) getNoneInput() *stream.NoneInputStream {
	s.noneInputMu.Lock()
	defer s.noneInputMu.Unlock()
	if s.noneInput == nil {
		s.noneInput = stream.NewNoneInputStream(s.cfg.NoneInputDepth)
	}
	return s.noneInput
}

func (s *Session) getBestEffortInput(id wire.StreamID) *stream.BestEffortInputStream {
	s.bestEffortInputMu.Lock()
	defer s.bestEffortInputMu.Unlock()
	st, ok := s.bestEffortInput[id]
	if !ok {
		st = stream.NewBestEffortInputStream(s.cfg.BestEffortInputDepth)
		s.bestEffortInput[id] = st
	}
	return st
}

func (s *Session) getReliableInput(id wire.StreamID) *stream.ReliableInputStream {
	s.reliableInputMu.Lock()
	defer s.reliableInputMu.Unlock()
	st, ok := s.reliableInput[id]
	if !ok {
		st = stream.NewReliableInputStream(s.cfg.ReliableInputWindow)
		s.reliableInput[id] = st
	}
	return st
}

func (s *Session) getNoneOutput() *stream.NoneOutputStream {
	s.noneOutputMu.Lock()
	defer s.noneOutputMu.Unlock()
	if s.noneOutput == nil {
		s.noneOutput = stream.NewNoneOutputStream(s.cfg.NoneOutputDepth)
	}
	return s.noneOutput
}

func (s *Session) getBestEffortOutput(id wire.StreamID) *stream.BestEffortOutputStream {
	s.bestEffortOutputMu.Lock()
	defer s.bestEffortOutputMu.Unlock()
	st, ok := s.bestEffortOutput[id]
	if !ok {
		st = stream.NewBestEffortOutputStream(s.cfg.BestEffortOutputDepth)
		s.bestEffortOutput[id] = st
	}
	return st
}

func (s *Session) getReliableOutput(id wire.StreamID) *stream.ReliableOutputStream {
	s.reliableOutputMu.RLock()
	st, ok := s.reliableOutput[id]
	s.reliableOutputMu.RUnlock()
	if ok {
		return st
	}
	s.reliableOutputMu.Lock()
	defer s.reliableOutputMu.Unlock()
	st, ok = s.reliableOutput[id]
	if !ok {
		st = stream.NewReliableOutputStream(s.cfg.ReliableOutputWindow)
		s.reliableOutput[id] = st
	}
	return st
}

// PushInputMessage routes msg to the input stream matching streamID's
// class. seq is ignored for the none stream.
func (s *Session) PushInputMessage(streamID wire.StreamID, seq seqnum.SeqNum, msg wire.Submessage) bool {
	switch {
	case streamID.IsNone():
		return s.getNoneInput().Push(msg)
	case streamID.IsBestEffort():
		return s.getBestEffortInput(streamID).Push(seq, msg)
	default:
		return s.getReliableInput(streamID).Push(seq, msg)
	}
}

// PopInputMessage dequeues the next available submessage for streamID. For
// a reliable stream this transparently reassembles FRAGMENT runs.
func (s *Session) PopInputMessage(streamID wire.StreamID) (wire.Submessage, seqnum.SeqNum, bool, error) {
	switch {
	case streamID.IsNone():
		msg, ok := s.getNoneInput().Pop()
		return msg, 0, ok, nil
	case streamID.IsBestEffort():
		msg, ok := s.getBestEffortInput(streamID).Pop()
		return msg, 0, ok, nil
	default:
		return s.getReliableInput(streamID).PopMessage()
	}
}

// UpdateFromHeartbeat applies a peer HEARTBEAT's window to the reliable
// input stream for streamID. A no-op for none/best-effort streams, which
// carry no heartbeat.
func (s *Session) UpdateFromHeartbeat(streamID wire.StreamID, firstUnacked, lastUnacked seqnum.SeqNum) {
	if !streamID.IsReliable() {
		return
	}
	s.getReliableInput(streamID).HeartbeatUpdate(firstUnacked, lastUnacked)
}

// FillAcknack computes the ACKNACK payload for streamID's reliable input
// stream.
func (s *Session) FillAcknack(streamID wire.StreamID) wire.AcknackPayload {
	return s.getReliableInput(streamID).FillAcknack()
}

// PushOutputSubmessage enqueues payload on streamID's output stream,
// creating it lazily. timeout only applies to reliable streams, which may
// block for window space.
func (s *Session) PushOutputSubmessage(streamID wire.StreamID, id wire.SubmessageKind, payload []byte, timeout time.Duration) bool {
	switch {
	case streamID.IsNone():
		return s.getNoneOutput().PushSubmessage(s.cfg.Info, id, payload)
	case streamID.IsBestEffort():
		return s.getBestEffortOutput(streamID).PushSubmessage(s.cfg.Info, streamID, id, payload)
	default:
		return s.getReliableOutput(streamID).PushSubmessage(s.cfg.Info, streamID, id, payload, timeout)
	}
}

// GetNextOutputMessage dequeues the next message to send on streamID.
func (s *Session) GetNextOutputMessage(streamID wire.StreamID) (wire.Message, bool) {
	switch {
	case streamID.IsNone():
		return s.getNoneOutput().GetNextMessage()
	case streamID.IsBestEffort():
		return s.getBestEffortOutput(streamID).GetNextMessage()
	default:
		return s.getReliableOutput(streamID).GetNextMessage()
	}
}

// GetOutputMessage looks up a specific retained sequence number on
// streamID's reliable output stream, servicing a negative ack. Returns
// false for non-reliable stream ids, which retain nothing.
func (s *Session) GetOutputMessage(streamID wire.StreamID, seq seqnum.SeqNum) (wire.Message, bool) {
	if !streamID.IsReliable() {
		return wire.Message{}, false
	}
	return s.getReliableOutput(streamID).GetMessage(seq)
}

// UpdateFromAcknack applies the peer's reported first_unacked to
// streamID's reliable output stream.
func (s *Session) UpdateFromAcknack(streamID wire.StreamID, firstUnacked seqnum.SeqNum) {
	if !streamID.IsReliable() {
		return
	}
	s.getReliableOutput(streamID).UpdateFromAcknack(firstUnacked)
}

// FillHeartbeat reports streamID's reliable output stream window for a
// HEARTBEAT submessage.
func (s *Session) FillHeartbeat(streamID wire.StreamID) (wire.HeartbeatPayload, bool) {
	if !streamID.IsReliable() {
		return wire.HeartbeatPayload{}, false
	}
	return s.getReliableOutput(streamID).FillHeartbeat()
}

// ListReliableOutputStreams returns the stream ids of every reliable
// output stream created so far, for the periodic heartbeat task to sweep.
func (s *Session) ListReliableOutputStreams() []wire.StreamID {
	s.reliableOutputMu.RLock()
	defer s.reliableOutputMu.RUnlock()
	ids := make([]wire.StreamID, 0, len(s.reliableOutput))
	for id := range s.reliableOutput {
		ids = append(ids, id)
	}
	return ids
}

// ListReliableInputStreams returns the stream ids of every reliable input
// stream created so far, for the periodic acknack task to sweep.
func (s *Session) ListReliableInputStreams() []wire.StreamID {
	s.reliableInputMu.Lock()
	defer s.reliableInputMu.Unlock()
	ids := make([]wire.StreamID, 0, len(s.reliableInput))
	for id := range s.reliableInput {
		ids = append(ids, id)
	}
	return ids
}

// ReliableInputHasGap reports whether streamID's reliable input stream has
// announced sequence numbers it has not yet been able to hand to the
// dispatcher, i.e. whether an ACKNACK is worth sending right now.
func (s *Session) ReliableInputHasGap(streamID wire.StreamID) bool {
	return s.getReliableInput(streamID).HasGap()
}

// FragmentsReassembled sums the completed fragment runs across every
// reliable input stream created so far, for metrics collection.
func (s *Session) FragmentsReassembled() int {
	s.reliableInputMu.Lock()
	streams := make([]*stream.ReliableInputStream, 0, len(s.reliableInput))
	for _, st := range s.reliableInput {
		streams = append(streams, st)
	}
	s.reliableInputMu.Unlock()

	total := 0
	for _, st := range streams {
		total += st.FragmentsReassembled()
	}
	return total
}

// Reset discards every stream, as if the session had just been created.
// Used when a client re-creates its session after a reconnect.
func (s *Session) Reset() {
	s.noneInputMu.Lock()
	s.noneInput = nil
	s.noneInputMu.Unlock()

	s.bestEffortInputMu.Lock()
	s.bestEffortInput = make(map[wire.StreamID]*stream.BestEffortInputStream)
	s.bestEffortInputMu.Unlock()

	s.reliableInputMu.Lock()
	s.reliableInput = make(map[wire.StreamID]*stream.ReliableInputStream)
	s.reliableInputMu.Unlock()

	s.noneOutputMu.Lock()
	s.noneOutput = nil
	s.noneOutputMu.Unlock()

	s.bestEffortOutputMu.Lock()
	s.bestEffortOutput = make(map[wire.StreamID]*stream.BestEffortOutputStream)
	s.bestEffortOutputMu.Unlock()

	s.reliableOutputMu.Lock()
	for _, st := range s.reliableOutput {
		st.Close()
	}
	s.reliableOutput = make(map[wire.StreamID]*stream.ReliableOutputStream)
	s.reliableOutputMu.Unlock()
}
