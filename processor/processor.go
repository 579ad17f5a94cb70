// Package processor implements the agent's dispatcher: turning decoded
// datagrams into client lookups, stream pushes, and per-submessage-kind
// handlers, and running the periodic heartbeat/acknack sweep that keeps
// reliable streams moving without further input from the peer.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
	"github.com/samsamfire/xrce-agent/metrics"
	"github.com/samsamfire/xrce-agent/proxyclient"
	"github.com/samsamfire/xrce-agent/registry"
	"github.com/samsamfire/xrce-agent/session"
	"github.com/samsamfire/xrce-agent/stream"
	"github.com/samsamfire/xrce-agent/wire"
)

// Endpoint names a peer address independent of transport: a UDP/TCP socket
// address, or a serial device path. It is only ever compared and used as a
// map key, never parsed here.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string { return e.Network + "://" + e.Address }

// Packet is one received datagram awaiting processing.
type Packet struct {
	Source Endpoint
	Data   []byte
}

// Sender delivers an encoded message to a peer endpoint. Transport
// adapters (C10) implement this.
type Sender interface {
	Send(dest Endpoint, data []byte) error
}

// Processor is the agent's dispatcher: one per agent instance, shared
// across every transport adapter.
type Processor struct {
	registry         *registry.Registry
	sender           Sender
	ackTimeout       time.Duration
	metrics          *metrics.Metrics
	reliableWindow   uint16
	bestEffortWindow uint16
	clientExpiry     time.Duration

	mu             sync.Mutex
	endpoints      map[Endpoint]uint32
	clientEndpoint map[uint32]Endpoint
	fragmentsSeen  map[uint32]int
}

// New returns a processor that dispatches into reg and sends replies via
// sender. ackTimeout bounds how long a reliable-stream reply may block for
// window space before the push is dropped. New sessions get the same
// stream window depths session.DefaultConfig uses (16); SetWindows
// overrides them.
func New(reg *registry.Registry, sender Sender, ackTimeout time.Duration) *Processor {
	return &Processor{
		registry:         reg,
		sender:           sender,
		ackTimeout:       ackTimeout,
		reliableWindow:   16,
		bestEffortWindow: 16,
		clientExpiry:     10 * time.Second,
		endpoints:        make(map[Endpoint]uint32),
		clientEndpoint:   make(map[uint32]Endpoint),
		fragmentsSeen:    make(map[uint32]int),
	}
}

// SetMetrics attaches m so Process/dispatch/retransmit start updating its
// counters. A nil or never-set metrics leaves the processor fully
// functional; counters are ambient bookkeeping only.
func (p *Processor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetWindows overrides the reliable/best-effort stream window depths new
// sessions are created with.
func (p *Processor) SetWindows(reliable, bestEffort uint16) {
	p.reliableWindow = reliable
	p.bestEffortWindow = bestEffort
}

// SetClientExpiry overrides how long a client may go without activity
// before Sweep expires it.
func (p *Processor) SetClientExpiry(maxIdle time.Duration) {
	p.clientExpiry = maxIdle
}

// bindEndpoint associates source with clientKey, replacing any previous
// client key bound to this endpoint. It refuses the rebind if clientKey is
// already registered under a different, still-bound endpoint.
func (p *Processor) bindEndpoint(source Endpoint, clientKey uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bound, ok := p.clientEndpoint[clientKey]; ok && bound != source {
		return false
	}
	if oldKey, ok := p.endpoints[source]; ok && oldKey != clientKey {
		delete(p.clientEndpoint, oldKey)
	}
	p.endpoints[source] = clientKey
	p.clientEndpoint[clientKey] = source
	return true
}

func (p *Processor) lookupClientKey(source Endpoint) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.endpoints[source]
	return key, ok
}

func (p *Processor) lookupEndpoint(clientKey uint32) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dest, ok := p.clientEndpoint[clientKey]
	return dest, ok
}

// forgetEndpoint removes clientKey's endpoint binding, so a later reconnect
// from the same or a different endpoint starts clean.
func (p *Processor) forgetEndpoint(clientKey uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dest, ok := p.clientEndpoint[clientKey]; ok {
		delete(p.endpoints, dest)
		delete(p.clientEndpoint, clientKey)
	}
	delete(p.fragmentsSeen, clientKey)
}

// Process decodes pkt and dispatches every submessage it carries. Called
// from a transport adapter's receive loop; safe for concurrent use across
// adapters and packets.
func (p *Processor) Process(pkt Packet) {
	msg, err := wire.DecodeMessage(pkt.Data)
	if err != nil {
		log.WithError(err).WithField("source", pkt.Source).Warn("dropped malformed datagram")
		return
	}
	if p.metrics != nil {
		p.metrics.MessagesProcessed.Inc()
	}

	var clientKey uint32
	if msg.Header.SessionID.HasClientKey() {
		clientKey = msg.Header.ClientKey
	} else {
		key, ok := p.lookupClientKey(pkt.Source)
		if !ok {
			log.WithField("source", pkt.Source).Warn("dropped datagram from unbound endpoint")
			return
		}
		clientKey = key
	}

	for _, sm := range msg.Submessages {
		if sm.Header.ID == wire.KindCreateClient {
			p.handleCreateClient(pkt.Source, sm)
			continue
		}

		entry, ok := p.registry.GetClient(clientKey)
		if !ok {
			log.WithField("client_key", clientKey).Warn("dropped submessage for unknown client")
			continue
		}

		switch sm.Header.ID {
		case wire.KindAcknack, wire.KindHeartbeat:
			// Control submessages describe the stream named in the message
			// header; they carry no sequence number of their own and never
			// pass through stream gap-ordering.
			p.dispatch(clientKey, entry, msg.Header.StreamID, 0, sm)
		default:
			if !entry.Session.PushInputMessage(msg.Header.StreamID, msg.Header.SequenceNumber, sm) {
				log.WithFields(log.Fields{
					"client_key": clientKey,
					"stream_id":  msg.Header.StreamID,
					"seq":        msg.Header.SequenceNumber,
				}).Debug("dropped duplicate or out-of-window submessage")
			}
		}
	}

	entry, ok := p.registry.GetClient(clientKey)
	if !ok {
		return
	}
	p.drain(clientKey, entry, msg.Header.StreamID)
}

func (p *Processor) drain(clientKey uint32, entry *registry.Entry, streamID wire.StreamID) {
	for {
		sm, seq, ok, err := entry.Session.PopInputMessage(streamID)
		if err != nil {
			log.WithError(err).WithField("client_key", clientKey).Warn("fragment reassembly failed")
			break
		}
		if !ok {
			break
		}
		p.dispatch(clientKey, entry, streamID, seq, sm)
	}
	if p.metrics != nil {
		p.recordFragmentsReassembled(clientKey, entry)
	}
}

// recordFragmentsReassembled adds however many new fragment runs entry's
// session has completed since the last time this client was checked.
func (p *Processor) recordFragmentsReassembled(clientKey uint32, entry *registry.Entry) {
	total := entry.Session.FragmentsReassembled()
	p.mu.Lock()
	prev := p.fragmentsSeen[clientKey]
	p.fragmentsSeen[clientKey] = total
	p.mu.Unlock()
	if delta := total - prev; delta > 0 {
		p.metrics.FragmentsReassembled.Add(float64(delta))
	}
}

func (p *Processor) dispatch(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, seq seqnum.SeqNum, sm wire.Submessage) {
	if p.metrics != nil {
		p.metrics.SubmessagesDispatched.WithLabelValues(sm.Header.ID.String()).Inc()
	}
	switch sm.Header.ID {
	case wire.KindCreate:
		p.handleCreate(clientKey, entry, streamID, sm)
	case wire.KindDelete:
		p.handleDelete(clientKey, entry, streamID, sm)
	case wire.KindWriteData:
		p.handleWriteData(clientKey, entry, sm)
	case wire.KindReadData:
		p.handleReadData(clientKey, entry, sm)
	case wire.KindGetInfo:
		p.handleGetInfo(clientKey, entry, streamID, sm)
	case wire.KindAcknack:
		p.handleAcknack(clientKey, entry, streamID, sm)
	case wire.KindHeartbeat:
		p.handleHeartbeat(clientKey, entry, streamID, sm)
	default:
		log.WithField("kind", sm.Header.ID).Warn("no handler for submessage kind")
	}
	_ = seq // the sequence number itself only matters to the stream that already consumed it
}

func (p *Processor) handleCreateClient(source Endpoint, sm wire.Submessage) {
	req, err := wire.DecodeCreateClientPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("source", source).Warn("malformed CREATE_CLIENT payload")
		return
	}

	if !p.bindEndpoint(source, req.ClientKey) {
		p.sendStatusDirect(source, req.RequestedSessID, req.ClientKey, wire.OpCreate, wire.StatusAlreadyExists)
		return
	}

	info := stream.Info{SessionID: req.RequestedSessID, ClientKey: req.ClientKey, MTU: req.MTU}
	cfg := session.DefaultConfig(info)
	cfg.ReliableInputWindow = p.reliableWindow
	cfg.ReliableOutputWindow = p.reliableWindow
	cfg.BestEffortInputDepth = int(p.bestEffortWindow)
	cfg.BestEffortOutputDepth = int(p.bestEffortWindow)
	status, err := p.registry.CreateClient(req, cfg)
	if err != nil {
		log.WithError(err).WithField("client_key", req.ClientKey).Info("create_client rejected")
	}

	entry, ok := p.registry.GetClient(req.ClientKey)
	if !ok {
		// Validation failed before an entry was ever created; reply directly.
		p.sendStatusDirect(source, req.RequestedSessID, req.ClientKey, wire.OpCreate, status)
		return
	}
	if status == wire.StatusOK && p.metrics != nil {
		p.metrics.SessionsCreated.Inc()
	}
	p.replyStatus(req.ClientKey, entry, wire.StreamNone, 0, wire.ObjectID(0), wire.OpCreate, status)
}

func (p *Processor) handleCreate(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, sm wire.Submessage) {
	req, err := wire.DecodeCreatePayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed CREATE payload")
		return
	}
	mode := proxyclient.CreationMode{Reuse: req.Mode.Reuse(), Replace: req.Mode.Replace()}
	rep := proxyclient.Representation{Kind: req.ObjectID.Kind(), Data: req.Representation}
	status, err := entry.ProxyClient.Create(mode, req.ObjectID, req.ParentID, rep)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"client_key": clientKey, "object_id": req.ObjectID}).Debug("create rejected")
	}
	p.replyStatus(clientKey, entry, streamID, req.RequestID, req.ObjectID, wire.OpCreate, status)
}

func (p *Processor) handleDelete(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, sm wire.Submessage) {
	req, err := wire.DecodeDeletePayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed DELETE payload")
		return
	}
	status, err := entry.ProxyClient.DeleteObject(req.ObjectID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"client_key": clientKey, "object_id": req.ObjectID}).Debug("delete_object rejected")
	}
	p.replyStatus(clientKey, entry, streamID, req.RequestID, req.ObjectID, wire.OpDelete, status)

	// Deleting the participant tears down the whole client: its proxy-client
	// tree is already empty (DeleteObject cascaded), so all that remains is
	// closing the session and forgetting the endpoint binding.
	if status == wire.StatusOK && req.ObjectID.Kind() == wire.ObjectKindParticipant {
		p.registry.DeleteClient(clientKey)
		p.forgetEndpoint(clientKey)
		if p.metrics != nil {
			p.metrics.SessionsClosed.Inc()
		}
	}
}

func (p *Processor) handleWriteData(clientKey uint32, entry *registry.Entry, sm wire.Submessage) {
	req, err := wire.DecodeWriteDataPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed WRITE_DATA payload")
		return
	}
	if err := entry.Middleware.Write(clientKey, req.ObjectID, req.Sample); err != nil {
		log.WithError(err).WithFields(log.Fields{"client_key": clientKey, "object_id": req.ObjectID}).Warn("write failed")
	}
}

func (p *Processor) handleReadData(clientKey uint32, entry *registry.Entry, sm wire.Submessage) {
	req, err := wire.DecodeReadDataPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed READ_DATA payload")
		return
	}
	objID := req.ObjectID
	returnStream := req.ReturnStreamID
	callback := func(payload []byte) {
		data := wire.DataPayload{ObjectID: objID, Sample: payload}.Encode(nil)
		p.pushAndFlush(clientKey, entry, returnStream, wire.KindData, data)
	}
	if err := entry.Middleware.Read(clientKey, objID, callback); err != nil {
		log.WithError(err).WithFields(log.Fields{"client_key": clientKey, "object_id": objID}).Warn("read registration failed")
	}
}

func (p *Processor) handleGetInfo(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, sm wire.Submessage) {
	req, err := wire.DecodeGetInfoPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed GET_INFO payload")
		return
	}
	kind, parent, ok := entry.ProxyClient.Get(req.ObjectID)
	if !ok {
		p.replyStatus(clientKey, entry, streamID, req.RequestID, req.ObjectID, wire.OpLookup, wire.StatusUnknownReference)
		return
	}
	blob := []byte(fmt.Sprintf("kind=%d parent=%d", kind, parent))
	payload := wire.InfoPayload{RequestID: req.RequestID, ObjectID: req.ObjectID, Info: blob}.Encode(nil)
	p.pushAndFlush(clientKey, entry, streamID, wire.KindInfo, payload)
}

func (p *Processor) handleAcknack(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, sm wire.Submessage) {
	ack, err := wire.DecodeAcknackPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed ACKNACK payload")
		return
	}
	entry.Session.UpdateFromAcknack(streamID, ack.FirstUnacked)
	p.retransmit(clientKey, entry, streamID, ack)
}

func (p *Processor) retransmit(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, ack wire.AcknackPayload) {
	dest, ok := p.lookupEndpoint(clientKey)
	if !ok {
		return
	}
	for i := uint16(0); i < 16; i++ {
		if ack.Bitmap&(1<<i) == 0 {
			continue
		}
		seq := seqnum.Add(ack.FirstUnacked, i)
		msg, ok := entry.Session.GetOutputMessage(streamID, seq)
		if !ok {
			continue
		}
		if err := p.sender.Send(dest, wire.EncodeMessage(msg)); err != nil {
			log.WithError(err).WithField("client_key", clientKey).Warn("retransmit failed")
			continue
		}
		if p.metrics != nil {
			p.metrics.Retransmissions.Inc()
		}
	}
}

func (p *Processor) handleHeartbeat(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, sm wire.Submessage) {
	hb, err := wire.DecodeHeartbeatPayload(sm.Payload)
	if err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("malformed HEARTBEAT payload")
		return
	}
	entry.Session.UpdateFromHeartbeat(streamID, hb.FirstUnacked, hb.LastUnacked)
	ack := entry.Session.FillAcknack(streamID)
	p.pushAndFlush(clientKey, entry, streamID, wire.KindAcknack, ack.Encode(nil))
}

func (p *Processor) replyStatus(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, requestID uint16, objID wire.ObjectID, op wire.OperationKind, status wire.StatusCode) {
	payload := wire.StatusPayload{RequestID: requestID, ObjectID: objID, Op: op, Status: status}.Encode(nil)
	p.pushAndFlush(clientKey, entry, streamID, wire.KindStatus, payload)
}

// pushAndFlush enqueues payload on streamID's output stream and immediately
// drains every message it yields to the peer.
func (p *Processor) pushAndFlush(clientKey uint32, entry *registry.Entry, streamID wire.StreamID, kind wire.SubmessageKind, payload []byte) {
	if !entry.Session.PushOutputSubmessage(streamID, kind, payload, p.ackTimeout) {
		log.WithFields(log.Fields{"client_key": clientKey, "stream_id": streamID, "kind": kind}).Warn("dropped outgoing submessage, window full")
		return
	}
	p.flush(clientKey, entry, streamID)
}

func (p *Processor) flush(clientKey uint32, entry *registry.Entry, streamID wire.StreamID) {
	dest, ok := p.lookupEndpoint(clientKey)
	if !ok {
		return
	}
	for {
		msg, ok := entry.Session.GetNextOutputMessage(streamID)
		if !ok {
			break
		}
		if err := p.sender.Send(dest, wire.EncodeMessage(msg)); err != nil {
			log.WithError(err).WithField("client_key", clientKey).Warn("send failed")
		}
	}
}

func (p *Processor) sendStatusDirect(dest Endpoint, sessID wire.SessionID, clientKey uint32, op wire.OperationKind, status wire.StatusCode) {
	header := wire.MessageHeader{SessionID: sessID, StreamID: wire.StreamNone, ClientKey: clientKey}
	payload := wire.StatusPayload{Op: op, Status: status}.Encode(nil)
	sm := wire.Submessage{Header: wire.SubmessageHeader{ID: wire.KindStatus}, Payload: payload}
	msg := wire.Message{Header: header, Submessages: []wire.Submessage{sm}}
	if err := p.sender.Send(dest, wire.EncodeMessage(msg)); err != nil {
		log.WithError(err).WithField("client_key", clientKey).Warn("send failed")
	}
}

// Sweep runs the periodic housekeeping pass described by the wire
// protocol's heartbeat design note: every reliable output stream with
// retained-but-unacked messages gets a fresh HEARTBEAT, and every reliable
// input stream with an open gap gets a fresh ACKNACK.
func (p *Processor) Sweep() {
	for _, clientKey := range p.registry.ExpireInactive(p.clientExpiry) {
		p.forgetEndpoint(clientKey)
		if p.metrics != nil {
			p.metrics.SessionsClosed.Inc()
		}
	}
	for _, clientKey := range p.registry.Keys() {
		entry, ok := p.registry.GetClient(clientKey)
		if !ok {
			continue
		}
		for _, streamID := range entry.Session.ListReliableOutputStreams() {
			hb, ok := entry.Session.FillHeartbeat(streamID)
			if !ok {
				continue
			}
			p.pushAndFlush(clientKey, entry, streamID, wire.KindHeartbeat, hb.Encode(nil))
		}
		for _, streamID := range entry.Session.ListReliableInputStreams() {
			if !entry.Session.ReliableInputHasGap(streamID) {
				continue
			}
			ack := entry.Session.FillAcknack(streamID)
			p.pushAndFlush(clientKey, entry, streamID, wire.KindAcknack, ack.Encode(nil))
		}
	}
}

// Run executes Sweep every interval until ctx is done.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}
