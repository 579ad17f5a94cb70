// Package proxyclient implements the per-client object tree: the set of
// middleware entities (participants, topics, publishers, subscribers,
// data writers/readers, requesters/repliers, and the parentless reference
// objects applications/QoS profiles/types) a client has created, keyed by
// object id.
package proxyclient

import (
	"sync"

	"github.com/samsamfire/xrce-agent/wire"
)

// Representation is the opaque entity definition carried by a CREATE
// submessage: a type reference, an XML or binary profile blob, or a
// reference to an already-created object, depending on the middleware's
// own representation format. The proxy-client tree treats it as an opaque
// comparable passed through to the middleware's matching predicate.
type Representation struct {
	// Kind is the object kind this representation would create.
	Kind wire.ObjectKind
	// Data is the middleware-specific payload (profile XML, binary QoS,
	// a referenced name) used to construct the entity and to test
	// equivalence with an existing one.
	Data []byte
}

// Middleware is the subset of the middleware façade the proxy-client tree
// needs: constructing an entity from a representation, deleting it, and
// testing whether two representations would produce equivalent entities.
type Middleware interface {
	Create(clientKey uint32, id, parent wire.ObjectID, rep Representation) error
	Delete(clientKey uint32, id wire.ObjectID) error
	Matches(clientKey uint32, id wire.ObjectID, existing, candidate Representation) bool
}

// CreationMode carries the REUSE/REPLACE flags a CREATE submessage sets.
type CreationMode struct {
	Reuse   bool
	Replace bool
}

// entity is one resident object: its kind, its representation (for future
// matching), and its parent (zero value for a root-level object).
type entity struct {
	kind   wire.ObjectKind
	parent wire.ObjectID
	rep    Representation
}

// expectedParentKind returns the object kind a parent of kind must have,
// and whether kind has a parent at all.
// Participant, application, QoS profile, and type objects are root-level
// (no expected parent).
func expectedParentKind(kind wire.ObjectKind) (parentKind wire.ObjectKind, hasParent bool) {
	switch kind {
	case wire.ObjectKindTopic, wire.ObjectKindPublisher, wire.ObjectKindSubscriber,
		wire.ObjectKindRequester, wire.ObjectKindReplier:
		return wire.ObjectKindParticipant, true
	case wire.ObjectKindDataWriter:
		return wire.ObjectKindPublisher, true
	case wire.ObjectKindDataReader:
		return wire.ObjectKindSubscriber, true
	default:
		return 0, false
	}
}

func isContainer(kind wire.ObjectKind) bool {
	switch kind {
	case wire.ObjectKindParticipant, wire.ObjectKindTopic, wire.ObjectKindPublisher, wire.ObjectKindSubscriber:
		return true
	default:
		return false
	}
}

// Tree is one client's object tree. children indexes parent id to the set
// of its direct children, so delete_object can walk descendants without
// scanning the whole map.
type Tree struct {
	mu         sync.Mutex
	clientKey  uint32
	middleware Middleware
	objects    map[wire.ObjectID]entity
	children   map[wire.ObjectID]map[wire.ObjectID]struct{}
}

// New returns an empty tree for clientKey, backed by middleware for
// construction, deletion, and representation matching.
func New(clientKey uint32, middleware Middleware) *Tree {
	return &Tree{
		clientKey:  clientKey,
		middleware: middleware,
		objects:    make(map[wire.ObjectID]entity),
		children:   make(map[wire.ObjectID]map[wire.ObjectID]struct{}),
	}
}

// Create applies the REUSE/REPLACE creation-mode matrix for id/rep,
// constructing or replacing the entity via the middleware as required.
func (t *Tree) Create(mode CreationMode, id wire.ObjectID, parentID wire.ObjectID, rep Representation) (wire.StatusCode, error) {
	if id.Kind() != rep.Kind {
		return wire.StatusInvalidData, wire.ErrInvalidData
	}
	if parentKind, hasParent := expectedParentKind(rep.Kind); hasParent {
		parent, ok := t.lookupParent(parentID)
		if !ok || parent.kind != parentKind {
			return wire.StatusInvalidData, wire.ErrInvalidData
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, exists := t.objects[id]
	if !exists {
		if err := t.middleware.Create(t.clientKey, id, parentID, rep); err != nil {
			return wire.FromError(err), err
		}
		t.insertLocked(id, parentID, rep)
		return wire.StatusOK, nil
	}

	matches := mode.Reuse && t.middleware.Matches(t.clientKey, id, existing.rep, rep)

	switch {
	case !mode.Reuse && !mode.Replace:
		return wire.StatusAlreadyExists, wire.ErrAlreadyExists
	case !mode.Reuse && mode.Replace:
		return t.recreateLocked(id, parentID, rep)
	case mode.Reuse && matches:
		return wire.StatusOKMatched, nil
	case mode.Reuse && !mode.Replace:
		return wire.StatusMismatch, wire.ErrMismatch
	default: // mode.Reuse && mode.Replace && !matches
		return t.recreateLocked(id, parentID, rep)
	}
}

func (t *Tree) recreateLocked(id, parentID wire.ObjectID, rep Representation) (wire.StatusCode, error) {
	t.deleteLocked(id)
	if err := t.middleware.Create(t.clientKey, id, parentID, rep); err != nil {
		return wire.FromError(err), err
	}
	t.insertLocked(id, parentID, rep)
	return wire.StatusOK, nil
}

func (t *Tree) lookupParent(parentID wire.ObjectID) (entity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.objects[parentID]
	return e, ok
}

func (t *Tree) insertLocked(id, parentID wire.ObjectID, rep Representation) {
	t.objects[id] = entity{kind: rep.Kind, parent: parentID, rep: rep}
	if _, hasParent := expectedParentKind(rep.Kind); hasParent {
		siblings, ok := t.children[parentID]
		if !ok {
			siblings = make(map[wire.ObjectID]struct{})
			t.children[parentID] = siblings
		}
		siblings[id] = struct{}{}
	}
}

// DeleteObject removes id and, if it is a container, every descendant
// first (child-first order).
func (t *Tree) DeleteObject(id wire.ObjectID) (wire.StatusCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.objects[id]; !ok {
		return wire.StatusUnknownReference, wire.ErrUnknownReference
	}
	t.deleteLocked(id)
	return wire.StatusOK, nil
}

func (t *Tree) deleteLocked(id wire.ObjectID) {
	e, ok := t.objects[id]
	if !ok {
		return
	}
	if isContainer(e.kind) {
		for child := range t.children[id] {
			t.deleteLocked(child)
		}
		delete(t.children, id)
	}
	if _, hasParent := expectedParentKind(e.kind); hasParent {
		if siblings, ok := t.children[e.parent]; ok {
			delete(siblings, id)
		}
	}
	delete(t.objects, id)
	_ = t.middleware.Delete(t.clientKey, id)
}

// DeleteAll removes every resident object by deleting each root-level
// object, whose cascade removes every descendant before its container.
// Used when a client's session is torn down.
func (t *Tree) DeleteAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.objects {
		if _, hasParent := expectedParentKind(e.kind); !hasParent {
			t.deleteLocked(id)
		}
	}
	for id := range t.objects {
		t.deleteLocked(id)
	}
}

// Get returns the entity kind and parent stored for id.
func (t *Tree) Get(id wire.ObjectID) (kind wire.ObjectKind, parent wire.ObjectID, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.objects[id]
	return e.kind, e.parent, ok
}
