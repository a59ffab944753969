package core

import "github.com/dkeye/Rendezvous/internal/domain"

// Presence maps identities to their live endpoints and back.
type Presence interface {
	Register(id domain.Identity, ep Endpoint) (displaced Endpoint)
	EndpointFor(id domain.Identity) (Endpoint, bool)
	IdentityFor(eid EndpointID) (domain.Identity, bool)
	Remove(eid EndpointID) (domain.Identity, bool)
	Endpoints() []Endpoint
	Count() int
}
