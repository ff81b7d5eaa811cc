// Package registry tracks registered clients on the server side: which
// virtual id belongs to which token and peer address, and for how long.
package registry

import (
	"errors"
	"net"
	"time"
)

type Id = uint8
type Token = uint64

const (
	// MinID and MaxID bound the assignable id range. 0, 1, 254 and 255
	// are reserved and never enter the free pool.
	MinID Id = 2
	MaxID Id = 254

	// TTL is how long a registration stays valid after it is created.
	// It is not refreshed by traffic: an idle-but-alive client is
	// reclaimed exactly like a dead one, matching the original
	// implementation's registry.
	TTL = 60 * time.Second
)

// ErrPoolExhausted is returned by Register when every assignable id is
// currently in use.
var ErrPoolExhausted = errors.New("registry: no identities available")

// Entry is one client's registration state.
type Entry struct {
	Token   Token
	Addr    *net.UDPAddr
	Created time.Time
}

// Registry maps ids to entries and owns the free-id pool. It is built to
// be driven from a single goroutine (the server's event loop) and does no
// locking of its own.
type Registry struct {
	entries map[Id]Entry
	free    []Id // ascending; Register pops from the tail, so id 253 (the
	// highest assignable) is handed out first.
}

// New builds a Registry with every id in [MinID, MaxID) free.
func New() *Registry {
	free := make([]Id, 0, int(MaxID-MinID))
	for id := MinID; id < MaxID; id++ {
		free = append(free, id)
	}
	return &Registry{entries: make(map[Id]Entry), free: free}
}

// Register allocates the next free id and associates it with token and
// addr. It returns ErrPoolExhausted once every id in range is in use.
func (r *Registry) Register(token Token, addr *net.UDPAddr) (Id, error) {
	return r.RegisterAt(time.Now(), token, addr)
}

// RegisterAt is Register with an explicit creation timestamp, for tests.
func (r *Registry) RegisterAt(now time.Time, token Token, addr *net.UDPAddr) (Id, error) {
	if len(r.free) == 0 {
		return 0, ErrPoolExhausted
	}
	id := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.entries[id] = Entry{Token: token, Addr: addr, Created: now}
	return id, nil
}

// Lookup returns the entry registered under id, if any.
func (r *Registry) Lookup(id Id) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Authenticate reports whether id is currently registered under token.
func (r *Registry) Authenticate(id Id, token Token) bool {
	e, ok := r.entries[id]
	return ok && e.Token == token
}

// Prune evicts every entry whose TTL has elapsed as of now, returning the
// ids it reclaimed. Reclaimed ids go back to the free pool.
func (r *Registry) Prune(now time.Time) []Id {
	var expired []Id
	for id, e := range r.entries {
		if now.Sub(e.Created) >= TTL {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.entries, id)
		r.free = append(r.free, id)
	}
	return expired
}

// Len returns the number of currently registered clients.
func (r *Registry) Len() int {
	return len(r.entries)
}
