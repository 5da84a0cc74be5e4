package database

import (
	"sort"
	"sync"

	"github.com/evalgo-org/eve/changeset"
)

// Directory resolves "shared" databases across evaluations: distinct
// *Database instances (each with its own triple index, owned by a single
// evaluation's fixpoint) that happen to carry the same name (§3 "Two
// databases with the same name registered in distinct evaluations are
// considered shared"). Fan-out on fixpoint goes through the directory
// rather than through direct object sharing, so a peer only ever learns of
// another evaluation's commit via a queued Commit item (§5), never by
// reading or writing its index.
type Directory struct {
	mu      sync.RWMutex
	entries map[string][]joined
}

type joined struct {
	db   *Database
	peer Peer
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string][]joined)}
}

// Join registers db (owned by peer) under db.Name() and points db at this
// directory so its OnFixpoint fans out through it instead of through its
// own local peer map.
func (dir *Directory) Join(db *Database, peer Peer) {
	dir.mu.Lock()
	dir.entries[db.Name()] = append(dir.entries[db.Name()], joined{db: db, peer: peer})
	dir.mu.Unlock()
	db.dir = dir
}

// Leave removes db/peer's registration.
func (dir *Directory) Leave(db *Database, peer Peer) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	list := dir.entries[db.Name()]
	for i, j := range list {
		if j.db == db && j.peer.ID() == peer.ID() {
			dir.entries[db.Name()] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// notify fans the portion of delta belonging to name out to every joined
// peer except origin.
func (dir *Directory) notify(name string, origin Peer, mine []changeset.Entry) {
	dir.mu.RLock()
	var peers []Peer
	for _, j := range dir.entries[name] {
		if j.peer.ID() == origin.ID() {
			continue
		}
		peers = append(peers, j.peer)
	}
	dir.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	for _, p := range peers {
		p.EnqueueCommit(name, mine)
	}
}
