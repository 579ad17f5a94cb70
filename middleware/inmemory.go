package middleware

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/wire"
)

type participant struct {
	spec ParticipantSpec
}

type topic struct {
	parent wire.ObjectID
	spec   TopicSpec
}

type endpoint struct {
	parent    wire.ObjectID
	spec      EndpointSpec
	callback  ReadCallback // set only for data readers with a pending Read
	requester RequesterSpec
}

// InMemory is the reference Facade: it keeps just enough per-entity state
// to answer Matches and to loop a datawriter's Write directly to every
// datareader bound to the same topic name, in process. It is a test and
// local-run tool, not a production DDS stack.
type InMemory struct {
	mu           sync.Mutex
	participants map[wire.ObjectID]participant
	topics       map[wire.ObjectID]topic
	publishers   map[wire.ObjectID]wire.ObjectID
	subscribers  map[wire.ObjectID]wire.ObjectID
	writers      map[wire.ObjectID]endpoint
	readers      map[wire.ObjectID]endpoint
	requesters   map[wire.ObjectID]endpoint
	repliers     map[wire.ObjectID]endpoint
}

// NewInMemory returns an empty reference middleware instance. cmd/agent
// builds one and hands that same instance to every client the registry
// creates.
func NewInMemory() *InMemory {
	return &InMemory{
		participants: make(map[wire.ObjectID]participant),
		topics:       make(map[wire.ObjectID]topic),
		publishers:   make(map[wire.ObjectID]wire.ObjectID),
		subscribers:  make(map[wire.ObjectID]wire.ObjectID),
		writers:      make(map[wire.ObjectID]endpoint),
		readers:      make(map[wire.ObjectID]endpoint),
		requesters:   make(map[wire.ObjectID]endpoint),
		repliers:     make(map[wire.ObjectID]endpoint),
	}
}

func (m *InMemory) CreateParticipant(clientKey uint32, id wire.ObjectID, spec ParticipantSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[id] = participant{spec: spec}
	return nil
}

func (m *InMemory) CreateTopic(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec TopicSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[id] = topic{parent: parent, spec: spec}
	return nil
}

func (m *InMemory) CreatePublisher(clientKey uint32, id wire.ObjectID, parent wire.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishers[id] = parent
	return nil
}

func (m *InMemory) CreateSubscriber(clientKey uint32, id wire.ObjectID, parent wire.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = parent
	return nil
}

func (m *InMemory) CreateDataWriter(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec EndpointSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writers[id] = endpoint{parent: parent, spec: spec}
	return nil
}

func (m *InMemory) CreateDataReader(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec EndpointSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readers[id] = endpoint{parent: parent, spec: spec}
	return nil
}

func (m *InMemory) CreateRequester(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec RequesterSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requesters[id] = endpoint{parent: parent, requester: spec}
	return nil
}

func (m *InMemory) CreateReplier(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec RequesterSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repliers[id] = endpoint{parent: parent, requester: spec}
	return nil
}

func (m *InMemory) Delete(clientKey uint32, id wire.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants, id)
	delete(m.topics, id)
	delete(m.publishers, id)
	delete(m.subscribers, id)
	delete(m.writers, id)
	delete(m.readers, id)
	delete(m.requesters, id)
	delete(m.repliers, id)
	return nil
}

// Matches compares representations of the same kind for semantic
// equivalence: same domain id for a participant, same topic name for a
// topic, same backing topic name for an endpoint.
func (m *InMemory) Matches(clientKey uint32, id wire.ObjectID, kind wire.ObjectKind, existing, candidate []byte) bool {
	switch kind {
	case wire.ObjectKindParticipant:
		var a, b ParticipantSpec
		if json.Unmarshal(existing, &a) != nil || json.Unmarshal(candidate, &b) != nil {
			return false
		}
		return a.DomainID == b.DomainID
	case wire.ObjectKindTopic:
		var a, b TopicSpec
		if json.Unmarshal(existing, &a) != nil || json.Unmarshal(candidate, &b) != nil {
			return false
		}
		return a.Name == b.Name
	case wire.ObjectKindDataWriter, wire.ObjectKindDataReader:
		var a, b EndpointSpec
		if json.Unmarshal(existing, &a) != nil || json.Unmarshal(candidate, &b) != nil {
			return false
		}
		return a.TopicName == b.TopicName
	case wire.ObjectKindRequester, wire.ObjectKindReplier:
		var a, b RequesterSpec
		if json.Unmarshal(existing, &a) != nil || json.Unmarshal(candidate, &b) != nil {
			return false
		}
		return a.ServiceName == b.ServiceName
	default:
		return string(existing) == string(candidate)
	}
}

// Write looks up writerID's topic name and delivers payload to every
// datareader bound to the same topic name that has a pending Read
// callback registered.
func (m *InMemory) Write(clientKey uint32, writerID wire.ObjectID, payload []byte) error {
	m.mu.Lock()
	writer, ok := m.writers[writerID]
	if !ok {
		m.mu.Unlock()
		return wire.ErrUnknownReference
	}
	var matching []ReadCallback
	for _, reader := range m.readers {
		if reader.spec.TopicName == writer.spec.TopicName && reader.callback != nil {
			matching = append(matching, reader.callback)
		}
	}
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"client_key": clientKey,
		"writer":     writerID,
		"topic":      writer.spec.TopicName,
		"readers":    len(matching),
	}).Debug("looping write to matching readers")

	for _, callback := range matching {
		callback(payload)
	}
	return nil
}

// Read registers callback as the pending-read delivery target for
// readerID. UnknownReference if readerID was never created.
func (m *InMemory) Read(clientKey uint32, readerID wire.ObjectID, callback ReadCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reader, ok := m.readers[readerID]
	if !ok {
		return wire.ErrUnknownReference
	}
	reader.callback = callback
	m.readers[readerID] = reader
	return nil
}

// LoadConfigFile is a no-op for the reference middleware: it has no
// profile/QoS-library configuration of its own to load.
func (m *InMemory) LoadConfigFile(path string) error {
	return nil
}
