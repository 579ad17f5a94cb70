package middleware

import (
	"encoding/json"

	"github.com/samsamfire/xrce-agent/proxyclient"
	"github.com/samsamfire/xrce-agent/wire"
)

// Adapter satisfies proxyclient.Middleware on top of a Facade: it decodes
// a Representation's opaque JSON payload into the typed spec each
// per-kind Facade method expects, and dispatches to it by object kind.
// This is the seam between the object-kind-agnostic proxy-client tree and
// the kind-specific Facade a real DDS stack would implement.
type Adapter struct {
	clientKey uint32
	facade    Facade
}

// NewAdapter returns a proxyclient.Middleware backed by facade for one
// client.
func NewAdapter(clientKey uint32, facade Facade) *Adapter {
	return &Adapter{clientKey: clientKey, facade: facade}
}

// Create decodes rep.Data by rep.Kind and dispatches to the matching
// Facade constructor.
func (a *Adapter) Create(clientKey uint32, id, parent wire.ObjectID, rep proxyclient.Representation) error {
	switch rep.Kind {
	case wire.ObjectKindParticipant:
		var spec ParticipantSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateParticipant(clientKey, id, spec)
	case wire.ObjectKindTopic:
		var spec TopicSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateTopic(clientKey, id, parent, spec)
	case wire.ObjectKindPublisher:
		return a.facade.CreatePublisher(clientKey, id, parent)
	case wire.ObjectKindSubscriber:
		return a.facade.CreateSubscriber(clientKey, id, parent)
	case wire.ObjectKindDataWriter:
		var spec EndpointSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateDataWriter(clientKey, id, parent, spec)
	case wire.ObjectKindDataReader:
		var spec EndpointSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateDataReader(clientKey, id, parent, spec)
	case wire.ObjectKindRequester:
		var spec RequesterSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateRequester(clientKey, id, parent, spec)
	case wire.ObjectKindReplier:
		var spec RequesterSpec
		if err := json.Unmarshal(rep.Data, &spec); err != nil {
			return wire.ErrInvalidData
		}
		return a.facade.CreateReplier(clientKey, id, parent, spec)
	case wire.ObjectKindApplication, wire.ObjectKindQosProfile, wire.ObjectKindType:
		// parentless reference objects: the reference middleware has
		// nothing to construct for these, they exist only to be
		// referenced by other representations' Data.
		return nil
	default:
		return wire.ErrInvalidData
	}
}

// Delete tears down whatever entity id names, regardless of kind; the
// reference Facade's Delete already no-ops harmlessly on an unknown id.
func (a *Adapter) Delete(clientKey uint32, id wire.ObjectID) error {
	return a.facade.Delete(clientKey, id)
}

// Matches delegates to the Facade's kind-specific equivalence check.
func (a *Adapter) Matches(clientKey uint32, id wire.ObjectID, existing, candidate proxyclient.Representation) bool {
	return a.facade.Matches(clientKey, id, existing.Kind, existing.Data, candidate.Data)
}
