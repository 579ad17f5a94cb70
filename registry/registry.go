// Package registry implements the agent's root client table: the map from
// client key to {session, proxy-client tree, last-activity timestamp} and
// the client lifecycle operations (create, delete, lookup, inactivity
// expiry) built on top of it.
package registry

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/middleware"
	"github.com/samsamfire/xrce-agent/proxyclient"
	"github.com/samsamfire/xrce-agent/session"
	"github.com/samsamfire/xrce-agent/wire"
)

// Entry is one registered client: its session, its object tree, its
// middleware façade instance, and the wall-clock time it was last heard
// from.
type Entry struct {
	Session      *session.Session
	ProxyClient  *proxyclient.Tree
	Middleware   middleware.Facade
	SessionID    wire.SessionID
	lastActivity time.Time
}

// Clock abstracts wall-clock time so inactivity expiry is deterministic
// under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Registry is the agent's root: map<client_key, Entry>, guarded by a
// single mutex (client creation/deletion is rare compared to per-stream
// traffic, which is already synchronized one level down in session).
type Registry struct {
	mu      sync.Mutex
	clients map[uint32]*Entry
	clock   Clock

	newMiddleware func(clientKey uint32) middleware.Facade
}

// New returns an empty registry. newMiddleware constructs the
// per-client middleware façade instance at create_client time, per spec.
func New(newMiddleware func(clientKey uint32) middleware.Facade) *Registry {
	return &Registry{
		clients:       make(map[uint32]*Entry),
		clock:         realClock{},
		newMiddleware: newMiddleware,
	}
}

// SetClock overrides the wall clock, for deterministic inactivity tests.
func (r *Registry) SetClock(clock Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// CreateClient validates req's magic cookie and protocol version, then
// creates, reuses, or replaces the entry for req.ClientKey depending on
// whether a session with the same requested session id already exists.
func (r *Registry) CreateClient(req wire.CreateClientPayload, info session.Config) (wire.StatusCode, error) {
	if err := req.Validate(); err != nil {
		return wire.FromError(err), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.clients[req.ClientKey]
	switch {
	case exists && existing.SessionID == req.RequestedSessID:
		existing.lastActivity = r.clock.Now()
		return wire.StatusOK, nil
	case exists:
		log.WithFields(log.Fields{
			"client_key":  req.ClientKey,
			"old_session": existing.SessionID,
			"new_session": req.RequestedSessID,
		}).Info("client reconnected with a new session id, replacing")
		existing.ProxyClient.DeleteAll()
		existing.Session.Reset()
		delete(r.clients, req.ClientKey)
	}

	facade := r.newMiddleware(req.ClientKey)
	entry := &Entry{
		Session:      session.New(info),
		ProxyClient:  proxyclient.New(req.ClientKey, middleware.NewAdapter(req.ClientKey, facade)),
		Middleware:   facade,
		SessionID:    req.RequestedSessID,
		lastActivity: r.clock.Now(),
	}
	r.clients[req.ClientKey] = entry
	return wire.StatusOK, nil
}

// DeleteClient tears down clientKey's proxy-client tree (child-first, via
// Tree.DeleteAll) and removes its session. UnknownReference if clientKey
// is not registered.
func (r *Registry) DeleteClient(clientKey uint32) (wire.StatusCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[clientKey]
	if !ok {
		return wire.StatusUnknownReference, wire.ErrUnknownReference
	}
	entry.ProxyClient.DeleteAll()
	entry.Session.Reset()
	delete(r.clients, clientKey)
	return wire.StatusOK, nil
}

// GetClient returns the entry for clientKey, or false if none is
// registered. Touches lastActivity as a side effect of use, so that
// polling a live client's streams counts as activity.
func (r *Registry) GetClient(clientKey uint32) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[clientKey]
	if ok {
		entry.lastActivity = r.clock.Now()
	}
	return entry, ok
}

// ExpireInactive deletes every client whose last activity is older than
// maxIdle, returning the client keys removed.
func (r *Registry) ExpireInactive(maxIdle time.Duration) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	var expired []uint32
	for key, entry := range r.clients {
		if now.Sub(entry.lastActivity) > maxIdle {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		r.clients[key].ProxyClient.DeleteAll()
		r.clients[key].Session.Reset()
		delete(r.clients, key)
		log.WithField("client_key", key).Info("client expired after inactivity")
	}
	return expired
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Keys returns every registered client key, for the periodic sweep to
// iterate over without holding the registry lock during per-client work.
func (r *Registry) Keys() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]uint32, 0, len(r.clients))
	for key := range r.clients {
		keys = append(keys, key)
	}
	return keys
}
