package app

import (
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

type presenceEntry struct {
	Identity domain.Identity
	Endpoint core.Endpoint
}

// Registry is the presence table: a bijection between identities and live
// endpoints.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[domain.Identity]core.EndpointID
	byEndpoint map[core.EndpointID]*presenceEntry
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[domain.Identity]core.EndpointID),
		byEndpoint: make(map[core.EndpointID]*presenceEntry),
	}
}

// Register binds id to ep. A previous endpoint bound to id loses its reverse
// mapping and is returned so the caller can account for it (last writer wins).
// A previous identity bound to ep is dropped.
func (r *Registry) Register(id domain.Identity, ep core.Endpoint) core.Endpoint {
	eid := ep.ID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byEndpoint[eid]; ok && prev.Identity != id {
		delete(r.byIdentity, prev.Identity)
	}

	var displaced core.Endpoint
	if prevEID, ok := r.byIdentity[id]; ok && prevEID != eid {
		if prev, ok := r.byEndpoint[prevEID]; ok {
			displaced = prev.Endpoint
		}
		delete(r.byEndpoint, prevEID)
		log.Warn().
			Str("module", "app.registry").
			Str("identity", id.String()).
			Str("old_endpoint", string(prevEID)).
			Str("endpoint", string(eid)).
			Msg("identity re-registered, previous endpoint displaced")
	}

	r.byIdentity[id] = eid
	r.byEndpoint[eid] = &presenceEntry{Identity: id, Endpoint: ep}
	log.Info().Str("module", "app.registry").Str("identity", id.String()).Str("endpoint", string(eid)).Msg("registered")
	return displaced
}

func (r *Registry) EndpointFor(id domain.Identity) (core.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eid, ok := r.byIdentity[id]
	if !ok {
		return nil, false
	}
	e, ok := r.byEndpoint[eid]
	if !ok {
		return nil, false
	}
	return e.Endpoint, true
}

func (r *Registry) IdentityFor(eid core.EndpointID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byEndpoint[eid]; ok {
		return e.Identity, true
	}
	return "", false
}

// Remove drops both directions of the mapping for eid.
func (r *Registry) Remove(eid core.EndpointID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byEndpoint[eid]
	if !ok {
		return "", false
	}
	delete(r.byEndpoint, eid)
	if r.byIdentity[e.Identity] == eid {
		delete(r.byIdentity, e.Identity)
	}
	log.Info().Str("module", "app.registry").Str("identity", e.Identity.String()).Str("endpoint", string(eid)).Msg("removed")
	return e.Identity, true
}

func (r *Registry) Endpoints() []core.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Endpoint, 0, len(r.byEndpoint))
	for _, e := range r.byEndpoint {
		out = append(out, e.Endpoint)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEndpoint)
}
