// Package database implements the ownership boundary named in §3/§4.6: a
// named triple index plus its blocks, which fans commits out to peer
// evaluations that share the same database name.
package database

import (
	"sort"
	"sync"

	"github.com/evalgo-org/eve/block"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/everr"
	"github.com/evalgo-org/eve/triple"
)

// Peer is the minimal view a Database needs of an evaluation: an identity to
// register under, and a mailbox to enqueue replayed commits into. This
// breaks the eval<->database import cycle noted in the design notes — a
// database holds peers by id rather than a concrete *eval.Evaluation,
// resolving the "weak back-reference" design note.
type Peer interface {
	ID() string
	EnqueueCommit(dbName string, delta []changeset.Entry)
}

// Database is the named, long-lived ownership boundary: a triple index, its
// ordered blocks, a non-executing flag, and the evaluations currently
// registered against it.
type Database struct {
	mu sync.RWMutex

	name         string
	index        *triple.Index
	blocks       []block.Block
	nonExecuting bool
	peers        map[string]Peer

	// dir is set by Directory.Join when this database is shared by name
	// across evaluations; when nil, OnFixpoint fans out to the local
	// peers map only (single-object sharing, e.g. in tests).
	dir *Directory
}

// New creates a database named name backed by idx.
func New(name string, idx *triple.Index) *Database {
	return &Database{name: name, index: idx, peers: make(map[string]Peer)}
}

// Name returns the database's registration name.
func (d *Database) Name() string { return d.name }

// Index returns the underlying triple index.
func (d *Database) Index() *triple.Index { return d.index }

// NonExecuting reports whether this database is excluded from block
// activation.
func (d *Database) NonExecuting() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nonExecuting
}

// SetNonExecuting sets the non-executing flag.
func (d *Database) SetNonExecuting(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nonExecuting = v
}

// AddBlock appends b to the database's ordered block list.
func (d *Database) AddBlock(b block.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks = append(d.blocks, b)
}

// Blocks returns the ordered block list.
func (d *Database) Blocks() []block.Block {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]block.Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Register adds p to the set of evaluations sharing this database. Two
// databases with the same name registered under distinct evaluations are
// "shared" per §3: commits fixpointed by one are fanned out to the others.
// Registering an id already present is a precondition violation (§7 kind 1).
func (d *Database) Register(p Peer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.peers[p.ID()]; exists {
		return everr.NewPrecondition("database.Register", "evaluation "+p.ID()+" already registered on database "+d.name)
	}
	d.peers[p.ID()] = p
	return nil
}

// Unregister removes p. Unregistering an id that was never registered is a
// precondition violation.
func (d *Database) Unregister(p Peer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.peers[p.ID()]; !exists {
		return everr.NewPrecondition("database.Unregister", "evaluation "+p.ID()+" not registered on database "+d.name)
	}
	delete(d.peers, p.ID())
	return nil
}

// Analyze is invoked on every registered pair when a new peer registers
// (§6 "analyze hook ... invoked on every pair during registration"). The
// base implementation is a no-op, as the contract allows; it exists as an
// extension point for collaborators that want to react to co-registration
// (e.g. to warm a cache keyed by the pair).
func (d *Database) Analyze(self Peer, other *Database) {}

// OnFixpoint is the database's fixpoint hook (§4.6): given the full
// committed delta of a just-quiesced fixpoint and the evaluation that
// produced it, it picks out the entries belonging to this database and
// enqueues a Commit work item on every other registered peer.
func (d *Database) OnFixpoint(origin Peer, delta []changeset.Entry) {
	d.mu.RLock()
	mine := make([]changeset.Entry, 0, len(delta))
	for _, e := range delta {
		if e.Db == d.name {
			mine = append(mine, e)
		}
	}
	dir := d.dir
	peers := make([]Peer, 0, len(d.peers))
	for id, p := range d.peers {
		if id == origin.ID() {
			continue
		}
		peers = append(peers, p)
	}
	d.mu.RUnlock()

	if len(mine) == 0 {
		return
	}

	if dir != nil {
		dir.notify(d.name, origin, mine)
		return
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	for _, p := range peers {
		p.EnqueueCommit(d.name, mine)
	}
}

// ToTriples dumps the database's committed quads, for save() (§4.8).
func (d *Database) ToTriples(includeProvenance bool) []triple.Quad {
	return d.index.ToTriples(includeProvenance)
}
