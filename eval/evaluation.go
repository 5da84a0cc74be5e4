// Package eval implements the Evaluation (§2 row 7): the owner of a
// multi-index, a set of databases, a FIFO queue of work items, and the
// fixpoint driver that processes them one at a time.
package eval

import (
	"fmt"
	"os"
	"sync"

	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/database"
	"github.com/evalgo-org/eve/everr"
	"github.com/evalgo-org/eve/metrics"
	"github.com/evalgo-org/eve/multiindex"
)

// MaxRounds is the fixpoint divergence cap's default (§4.6); Options.MaxRounds
// overrides it, typically sourced from config.Runtime.MaxRounds.
const MaxRounds = 300

// Options tunes a single Evaluation's fixpoint driver and queue. The zero
// value is not meant to be passed directly: New treats a zero field as
// "use the default" rather than as a literal zero.
type Options struct {
	// MaxRounds caps the number of rounds a fixpoint may run before it is
	// reported as diverged (§4.6). Zero means MaxRounds (300).
	MaxRounds int
	// QueueBuffer sizes the deferred-drain wakeup channel (§4.7). Work
	// items themselves are never dropped — this only bounds how many
	// scheduleDrain wakeups can be pending; a wakeup beyond that is
	// discarded and the caller never blocks.
	// Zero means 1, which is sufficient since repeated wakeups coalesce.
	QueueBuffer int
}

// Evaluation owns one multi-index, its registered databases, and the
// single-consumer queue that serializes external work against them.
type Evaluation struct {
	id string

	ns        *multiindex.Namespace
	databases []*database.Database

	reporter  everr.Reporter
	metrics   *metrics.Counters
	maxRounds int

	mu          sync.Mutex
	queue       []*WorkItem
	currentItem *WorkItem

	drain chan struct{}
	stop  chan struct{}
}

// New creates an evaluation identified by id. reporter and mc may be nil;
// a nil reporter falls back to writing to stderr (§6), and a nil *metrics.Counters
// disables all timing/counting. opts is variadic so existing callers that
// don't care about tuning can omit it entirely; passing more than one
// Options is a precondition violation the caller should not do, and only
// the first is honored.
func New(id string, reporter everr.Reporter, mc *metrics.Counters, opts ...Options) *Evaluation {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	maxRounds := o.MaxRounds
	if maxRounds <= 0 {
		maxRounds = MaxRounds
	}
	queueBuffer := o.QueueBuffer
	if queueBuffer <= 0 {
		queueBuffer = 1
	}

	ev := &Evaluation{
		id:        id,
		ns:        multiindex.New(),
		reporter:  reporter,
		metrics:   mc,
		maxRounds: maxRounds,
		drain:     make(chan struct{}, queueBuffer),
		stop:      make(chan struct{}),
	}
	go ev.drainLoop()
	return ev
}

// ID implements database.Peer.
func (ev *Evaluation) ID() string { return ev.id }

// Namespace returns the evaluation's multi-index.
func (ev *Evaluation) Namespace() *multiindex.Namespace { return ev.ns }

// Databases returns the registered databases in registration order.
func (ev *Evaluation) Databases() []*database.Database {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	out := make([]*database.Database, len(ev.databases))
	copy(out, ev.databases)
	return out
}

// Close stops the evaluation's deferred-drain goroutine. It does not wait
// for any in-flight fixpoint to finish.
func (ev *Evaluation) Close() { close(ev.stop) }

// RegisterDatabase registers db with this evaluation: it joins the
// multi-index under db's name, the analyze hook runs on every existing
// pair (§6), and db records this evaluation as a peer so later fixpoints
// can fan commits out to it.
func (ev *Evaluation) RegisterDatabase(db *database.Database) error {
	if err := ev.ns.Register(db.Name(), db.Index()); err != nil {
		return err
	}

	ev.mu.Lock()
	existing := make([]*database.Database, len(ev.databases))
	copy(existing, ev.databases)
	ev.databases = append(ev.databases, db)
	ev.mu.Unlock()

	for _, other := range existing {
		db.Analyze(ev, other)
		other.Analyze(ev, db)
	}

	return db.Register(ev)
}

// RegisterSharedDatabase is RegisterDatabase plus joining db to dir under
// its name, so commits this evaluation fixpoints are fanned out to every
// other evaluation that has joined a same-named database on dir (§3 "two
// databases with the same name registered in distinct evaluations are
// considered shared"). Each evaluation keeps its own *database.Database and
// triple index; dir is the only thing the two share.
func (ev *Evaluation) RegisterSharedDatabase(db *database.Database, dir *database.Directory) error {
	if err := ev.RegisterDatabase(db); err != nil {
		return err
	}
	dir.Join(db, ev)
	return nil
}

// UnregisterDatabase removes db from this evaluation.
func (ev *Evaluation) UnregisterDatabase(db *database.Database) error {
	ev.ns.Unregister(db.Name())

	ev.mu.Lock()
	for i, d := range ev.databases {
		if d == db {
			ev.databases = append(ev.databases[:i], ev.databases[i+1:]...)
			break
		}
	}
	ev.mu.Unlock()

	return db.Unregister(ev)
}

// ExecuteActions is the standard external entry point (§4.7): it enqueues
// an Actions work item that stages every action, commits once, and then
// drives a fixpoint seeded by that commit. changes and callback may be nil.
func (ev *Evaluation) ExecuteActions(actions []action.Action, changes *changeset.Set, callback func([]changeset.Entry)) {
	ev.enqueue(newActionsItem(actions, changes, callback))
}

// EnqueueCommit implements database.Peer: it replays a peer's committed
// delta for dbName through this evaluation's own fixpoint driver.
func (ev *Evaluation) EnqueueCommit(dbName string, delta []changeset.Entry) {
	ev.enqueue(newCommitItem(delta))
}

func (ev *Evaluation) enqueue(item *WorkItem) {
	ev.mu.Lock()
	ev.queue = append(ev.queue, item)
	ev.mu.Unlock()
	ev.scheduleDrain()
}

// scheduleDrain wakes the drain goroutine. The channel is buffered (depth
// set by Options.QueueBuffer, default one), so repeated calls while a drain
// is already pending coalesce into a single pending wakeup (§4.7 "deferred
// drain").
func (ev *Evaluation) scheduleDrain() {
	select {
	case ev.drain <- struct{}{}:
	default:
	}
}

func (ev *Evaluation) drainLoop() {
	for {
		select {
		case <-ev.stop:
			return
		case <-ev.drain:
			ev.drainOnce()
		}
	}
}

func (ev *Evaluation) drainOnce() {
	ev.mu.Lock()
	if ev.currentItem != nil || len(ev.queue) == 0 {
		ev.mu.Unlock()
		return
	}
	item := ev.queue[0]
	ev.queue = ev.queue[1:]
	ev.currentItem = item
	ev.mu.Unlock()

	ev.runFixpoint(item)
}

func (ev *Evaluation) report(kind, message string) {
	if ev.reporter != nil {
		ev.reporter.Report(kind, message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", kind, message)
}
