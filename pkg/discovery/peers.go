package discovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// A Peer is a node that answered a probe.
type Peer struct {
	Identity Identity
	// Advertise is the endpoint the peer announced for its service, which
	// may differ from the discovery source address.
	Advertise string
	// Source is the address the announcement actually came from.
	Source string
	// LastSeen is when the peer last answered.
	LastSeen time.Time
}

// A PeerStore tracks discovered peers by ID. It is safe for concurrent use.
type PeerStore struct {
	sync.Mutex

	store map[uuid.UUID]Peer
}

func NewPeerStore() *PeerStore {
	return &PeerStore{
		store: map[uuid.UUID]Peer{},
	}
}

// Record inserts or refreshes a peer.
func (p *PeerStore) Record(peer Peer) {
	p.Lock()
	defer p.Unlock()

	p.store[peer.Identity.ID] = peer
}

// Get returns the peer with the given ID, if known.
func (p *PeerStore) Get(id uuid.UUID) (Peer, bool) {
	p.Lock()
	defer p.Unlock()

	peer, ok := p.store[id]
	return peer, ok
}

// Peers returns a snapshot of all known peers.
func (p *PeerStore) Peers() []Peer {
	p.Lock()
	defer p.Unlock()

	peers := make([]Peer, 0, len(p.store))
	for _, peer := range p.store {
		peers = append(peers, peer)
	}
	return peers
}
