package stream

import (
	"sync"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/wire"
)

// NoneInputStream is the unreliable, unordered queue backing the none
// stream (0x00): no sequence bookkeeping, pushes rejected once the queue is
// at capacity.
type NoneInputStream struct {
	mu    sync.Mutex
	depth int
	queue []wire.Submessage
}

// NewNoneInputStream returns a stream bounded to depth queued submessages.
func NewNoneInputStream(depth int) *NoneInputStream {
	return &NoneInputStream{depth: depth}
}

// Push appends msg if the queue has room.
func (s *NoneInputStream) Push(msg wire.Submessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.depth {
		return false
	}
	s.queue = append(s.queue, msg)
	return true
}

// Pop removes and returns the oldest queued submessage.
func (s *NoneInputStream) Pop() (wire.Submessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return wire.Submessage{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// BestEffortInputStream tracks the last received sequence number and
// drops out-of-order duplicates and late arrivals (newer-wins contract).
type BestEffortInputStream struct {
	mu           sync.Mutex
	depth        int
	haveReceived bool
	lastReceived seqnum.SeqNum
	queue        []wire.Submessage
}

// NewBestEffortInputStream returns a stream bounded to depth queued
// submessages.
func NewBestEffortInputStream(depth int) *BestEffortInputStream {
	return &BestEffortInputStream{depth: depth}
}

// Push accepts msg iff seq is newer than the last received sequence number
// (modular) and the queue has room.
func (s *BestEffortInputStream) Push(seq seqnum.SeqNum, msg wire.Submessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveReceived && !seqnum.Less(s.lastReceived, seq) {
		return false
	}
	if len(s.queue) >= s.depth {
		return false
	}
	s.queue = append(s.queue, msg)
	s.lastReceived = seq
	s.haveReceived = true
	return true
}

// Pop removes and returns the oldest queued submessage.
func (s *BestEffortInputStream) Pop() (wire.Submessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return wire.Submessage{}, false
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}

// initialSeq is the sentinel "one before the first legal sequence number"
// used for last_handled/last_announced/last_sent/last_unacked bookkeeping,
// so that the first real sequence number (0) is accepted by the same
// modular `x > last_x` comparisons that govern every later one. A reliable
// output stream's first_unacked starts one past it, at 0.
const initialSeq = seqnum.SeqNum(0xFFFF)

// ReliableInputStream enforces strict in-order delivery within a window of
// W_r pending sequence numbers, deduplicates retransmissions, and
// reassembles FRAGMENT submessages into their original submessage.
type ReliableInputStream struct {
	mu            sync.Mutex
	wr            uint16 // window depth, W_r
	lastHandled   seqnum.SeqNum
	lastAnnounced seqnum.SeqNum
	pending       map[seqnum.SeqNum]wire.Submessage

	fragmentBuf          []byte
	fragmentsReassembled int
}

// NewReliableInputStream returns a stream with reliable window depth wr.
func NewReliableInputStream(wr uint16) *ReliableInputStream {
	return &ReliableInputStream{
		wr:            wr,
		lastHandled:   initialSeq,
		lastAnnounced: initialSeq,
		pending:       make(map[seqnum.SeqNum]wire.Submessage),
	}
}

// Push accepts msg iff last_handled < seq <= last_handled+W_r (modular).
// Sequences beyond the previously announced high-water mark advance
// last_announced; sequences at or below it are deduplicated against the
// pending map. Returns true iff msg was newly inserted.
func (s *ReliableInputStream) Push(seq seqnum.SeqNum, msg wire.Submessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	hi := seqnum.Add(s.lastHandled, s.wr)
	if !(seqnum.Less(s.lastHandled, seq) && seqnum.LessEqual(seq, hi)) {
		return false
	}

	if seqnum.Less(s.lastAnnounced, seq) {
		s.lastAnnounced = seq
		s.pending[seq] = msg
		return true
	}
	if _, exists := s.pending[seq]; exists {
		return false
	}
	s.pending[seq] = msg
	return true
}

// Pop removes and returns the next in-order submessage (last_handled+1) if
// present; a gap in the sequence blocks all later messages from popping.
func (s *ReliableInputStream) Pop() (wire.Submessage, seqnum.SeqNum, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked()
}

func (s *ReliableInputStream) popLocked() (wire.Submessage, seqnum.SeqNum, bool) {
	next := seqnum.Add(s.lastHandled, 1)
	msg, ok := s.pending[next]
	if !ok {
		return wire.Submessage{}, 0, false
	}
	delete(s.pending, next)
	s.lastHandled = next
	return msg, next, true
}

// PopMessage pops in-order submessages, transparently reassembling
// FRAGMENT runs, and returns the next complete submessage (either a
// directly popped non-fragment submessage, or the submessage reconstructed
// once a fragment run's last piece has been popped).
func (s *ReliableInputStream) PopMessage() (wire.Submessage, seqnum.SeqNum, bool, error) {
	for {
		msg, seq, ok := s.Pop()
		if !ok {
			return wire.Submessage{}, 0, false, nil
		}
		if msg.Header.ID != wire.KindFragment {
			return msg, seq, true, nil
		}

		s.mu.Lock()
		s.fragmentBuf = append(s.fragmentBuf, msg.Payload...)
		last := msg.IsLastFragment()
		var buf []byte
		if last {
			buf = s.fragmentBuf
			s.fragmentBuf = nil
		}
		s.mu.Unlock()

		if !last {
			continue
		}
		reassembled, _, err := wire.DecodeSubmessage(buf)
		if err != nil {
			return wire.Submessage{}, 0, false, err
		}
		s.mu.Lock()
		s.fragmentsReassembled++
		s.mu.Unlock()
		return reassembled, seq, true, nil
	}
}

// FragmentsReassembled returns the number of fragment runs this stream has
// reassembled into a complete submessage so far.
func (s *ReliableInputStream) FragmentsReassembled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragmentsReassembled
}

// HeartbeatUpdate applies a peer HEARTBEAT's window to this stream: it
// fast-forwards last_handled past sequences the peer has given up on, and
// raises last_announced so the acknack bitmap will request any gap.
func (s *ReliableInputStream) HeartbeatUpdate(firstUnacked, lastUnacked seqnum.SeqNum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seqnum.Less(seqnum.Add(s.lastHandled, 1), firstUnacked) {
		s.lastHandled = seqnum.Sub(firstUnacked, 1)
	}
	if seqnum.Less(s.lastAnnounced, lastUnacked) {
		s.lastAnnounced = lastUnacked
	}
}

// FillAcknack computes the ACKNACK payload requesting retransmission of
// every sequence in the announced-but-not-yet-stored range.
func (s *ReliableInputStream) FillAcknack() wire.AcknackPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	firstUnacked := seqnum.Add(s.lastHandled, 1)
	var bitmap uint16
	for i := uint16(0); i < 16; i++ {
		seq := seqnum.Add(s.lastHandled, i+1)
		if !seqnum.LessEqual(seq, s.lastAnnounced) {
			continue
		}
		if _, stored := s.pending[seq]; stored {
			continue
		}
		bitmap |= 1 << i
	}
	return wire.AcknackPayload{FirstUnacked: firstUnacked, Bitmap: bitmap}
}

// HasGap reports whether the stream has messages the peer has announced
// but that have not yet been handled (last_announced > last_handled),
// i.e. whether sending an ACKNACK is worthwhile right now.
func (s *ReliableInputStream) HasGap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seqnum.Less(s.lastHandled, s.lastAnnounced)
}
