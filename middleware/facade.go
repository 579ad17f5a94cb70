// Package middleware defines the publish-subscribe façade the session
// core dispatches into, and ships a minimal in-memory reference
// implementation for tests and local runs. Non-goal: this is not a DDS
// implementation — production deployments plug in a real one behind the
// same Facade interface.
package middleware

import "github.com/samsamfire/xrce-agent/wire"

// ParticipantSpec is the representation a CREATE_PARTICIPANT carries.
type ParticipantSpec struct {
	DomainID int16 `json:"domain_id"`
}

// TopicSpec is the representation a CREATE_TOPIC carries.
type TopicSpec struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

// EndpointSpec is the representation a CREATE_DATAWRITER/CREATE_DATAREADER
// carries: which topic it binds to and an opaque QoS profile blob.
type EndpointSpec struct {
	TopicName string `json:"topic_name"`
	QoS       []byte `json:"qos,omitempty"`
}

// RequesterSpec is the representation a CREATE_REQUESTER/CREATE_REPLIER
// carries.
type RequesterSpec struct {
	ServiceName string `json:"service_name"`
	RequestType string `json:"request_type"`
	ReplyType   string `json:"reply_type"`
}

// ReadCallback receives one sample delivered to a pending Read.
type ReadCallback func(payload []byte)

// Facade is the interface the processor (C9) and proxy-client tree (C8)
// call into for everything that is not session/stream bookkeeping:
// constructing and tearing down DDS-level entities, testing whether two
// representations are equivalent, and moving data in and out.
type Facade interface {
	CreateParticipant(clientKey uint32, id wire.ObjectID, spec ParticipantSpec) error
	CreateTopic(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec TopicSpec) error
	CreatePublisher(clientKey uint32, id wire.ObjectID, parent wire.ObjectID) error
	CreateSubscriber(clientKey uint32, id wire.ObjectID, parent wire.ObjectID) error
	CreateDataWriter(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec EndpointSpec) error
	CreateDataReader(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec EndpointSpec) error
	CreateRequester(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec RequesterSpec) error
	CreateReplier(clientKey uint32, id wire.ObjectID, parent wire.ObjectID, spec RequesterSpec) error
	Delete(clientKey uint32, id wire.ObjectID) error
	Matches(clientKey uint32, id wire.ObjectID, kind wire.ObjectKind, existing, candidate []byte) bool
	Write(clientKey uint32, writerID wire.ObjectID, payload []byte) error
	Read(clientKey uint32, readerID wire.ObjectID, callback ReadCallback) error
	LoadConfigFile(path string) error
}
