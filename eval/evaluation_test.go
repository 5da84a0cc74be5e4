package eval

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/block"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/database"
	"github.com/evalgo-org/eve/everr"
	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/triple"
)

// captureReporter records every Report call for assertions, instead of
// writing to stderr like the zero-value fallback.
type captureReporter struct {
	mu      sync.Mutex
	entries []string
}

func (r *captureReporter) Report(kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, kind+": "+message)
}

func (r *captureReporter) has(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if len(e) >= len(kind) && e[:len(kind)] == kind {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func newTestDatabase(t *testing.T, ev *Evaluation, name string) *database.Database {
	t.Helper()
	db := database.New(name, triple.New())
	if err := ev.RegisterDatabase(db); err != nil {
		t.Fatalf("register database %q: %v", name, err)
	}
	return db
}

// derivingBlock adapts a plain function to block.Block, mirroring the
// corpus's func-adapter habit already used by action.Func.
type derivingBlock struct {
	id      string
	checker block.Checker
	fn      func(ns *multiindex.Namespace, changes *changeset.Set) error
}

func (b *derivingBlock) ID() string            { return b.id }
func (b *derivingBlock) Dormant() bool         { return false }
func (b *derivingBlock) Checker() block.Checker { return b.checker }
func (b *derivingBlock) Execute(ns *multiindex.Namespace, changes *changeset.Set) error {
	return b.fn(ns, changes)
}

func TestSingleFactInsertion(t *testing.T) {
	ev := New("ev1", nil, nil)
	defer ev.Close()
	db := newTestDatabase(t, ev, "main")

	done := make(chan []changeset.Entry, 1)
	ev.ExecuteActions([]action.Action{
		action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			changes.Store("main", "e1", "tag", "person", "seed")
			return nil
		}),
	}, nil, func(delta []changeset.Entry) { done <- delta })

	select {
	case delta := <-done:
		if len(delta) != 1 || delta[0].Change != changeset.Added {
			t.Fatalf("expected a single Added entry, got %v", delta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if !db.Index().Contains("e1", "tag", "person") {
		t.Fatal("expected e1/tag/person to be present after commit")
	}
}

func TestTrivialDerivation(t *testing.T) {
	ev := New("ev1", nil, nil)
	defer ev.Close()
	db := newTestDatabase(t, ev, "main")

	db.AddBlock(&derivingBlock{
		id:      "greeter",
		checker: block.NewTagAttributeFilter(block.Pattern{Tag: "person", Attribute: "tag"}),
		fn: func(ns *multiindex.Namespace, changes *changeset.Set) error {
			idx, _ := ns.Lookup("main")
			for _, q := range idx.Iterate(triple.Pattern{A: "tag", V: "person", BoundA: true, BoundV: true}) {
				if !idx.Contains(q.E, "greeting", "hello") {
					changes.Store("main", q.E, "greeting", "hello", "greeter")
				}
			}
			return nil
		},
	})

	done := make(chan []changeset.Entry, 1)
	ev.ExecuteActions([]action.Action{
		action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			changes.Store("main", "e1", "tag", "person", "seed")
			return nil
		}),
	}, nil, func(delta []changeset.Entry) { done <- delta })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if !db.Index().Contains("e1", "greeting", "hello") {
		t.Fatal("expected the derivation block to have produced e1/greeting/hello")
	}
}

func TestDivergentProgramReportsFixpointError(t *testing.T) {
	reporter := &captureReporter{}
	ev := New("ev1", reporter, nil)
	defer ev.Close()
	db := newTestDatabase(t, ev, "main")

	db.AddBlock(&derivingBlock{
		id:      "runaway",
		checker: block.Always{},
		fn: func(ns *multiindex.Namespace, changes *changeset.Set) error {
			idx, _ := ns.Lookup("main")
			e := fmt.Sprintf("e%d", len(idx.ToTriples(false))+1)
			changes.Store("main", e, "tag", "marker", "runaway")
			return nil
		},
	})

	done := make(chan []changeset.Entry, 1)
	ev.ExecuteActions([]action.Action{
		action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			changes.Store("main", "seed", "tag", "marker", "seed")
			return nil
		}),
	}, nil, func(delta []changeset.Entry) { done <- delta })

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the divergent fixpoint to give up")
	}

	if !reporter.has(everr.DivergenceKind) {
		t.Fatalf("expected a %q report, got %v", everr.DivergenceKind, reporter.entries)
	}
}

type fakeRemoteBlock struct {
	id string
	ev *Evaluation
}

func (b *fakeRemoteBlock) ID() string            { return b.id }
func (b *fakeRemoteBlock) Dormant() bool         { return false }
func (b *fakeRemoteBlock) Checker() block.Checker { return block.Always{} }
func (b *fakeRemoteBlock) IsRemoteBlock() bool   { return true }
func (b *fakeRemoteBlock) Execute(ns *multiindex.Namespace, changes *changeset.Set) error {
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.ev.OnRemoteChanges(b.id, []changeset.Entry{
			{Change: changeset.Added, Db: "main", E: "e1", A: "tag", V: "remote-derived", N: "remote"},
		})
	}()
	return nil
}

var _ block.Remote = (*fakeRemoteBlock)(nil)

func TestRemoteBlockResumption(t *testing.T) {
	ev := New("ev1", nil, nil)
	defer ev.Close()
	db := newTestDatabase(t, ev, "main")
	db.AddBlock(&fakeRemoteBlock{id: "remote-1", ev: ev})

	done := make(chan []changeset.Entry, 1)
	ev.ExecuteActions([]action.Action{
		action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			changes.Store("main", "e1", "tag", "person", "seed")
			return nil
		}),
	}, nil, func(delta []changeset.Entry) { done <- delta })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote-block-resumed fixpoint to finish")
	}

	if !db.Index().Contains("e1", "tag", "remote-derived") {
		t.Fatal("expected the remote block's delivered entry to have been committed")
	}
}

func TestOnRemoteChangesRejectsUnawaitedBlock(t *testing.T) {
	ev := New("ev1", nil, nil)
	defer ev.Close()
	err := ev.OnRemoteChanges("never-awaited", nil)
	if err == nil {
		t.Fatal("expected a precondition violation for a block not currently awaited")
	}
}

func TestProvenanceReferenceCounting(t *testing.T) {
	ev := New("ev1", nil, nil)
	defer ev.Close()
	db := newTestDatabase(t, ev, "main")

	stage := func(n string, ch func(*changeset.Set)) {
		done := make(chan struct{})
		ev.ExecuteActions([]action.Action{
			action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
				ch(changes)
				return nil
			}),
		}, nil, func([]changeset.Entry) { close(done) })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s to commit", n)
		}
	}

	stage("insert-a", func(c *changeset.Set) { c.Store("main", "e1", "tag", "person", "a") })
	stage("insert-b", func(c *changeset.Set) { c.Store("main", "e1", "tag", "person", "b") })

	if !db.Index().Contains("e1", "tag", "person") {
		t.Fatal("expected e1/tag/person present after two independent insertions")
	}

	stage("remove-a", func(c *changeset.Set) { c.Unstore("main", "e1", "tag", "person", "a") })
	if !db.Index().Contains("e1", "tag", "person") {
		t.Fatal("expected e1/tag/person still present: provenance b has not been removed")
	}

	stage("remove-b", func(c *changeset.Set) { c.Unstore("main", "e1", "tag", "person", "b") })
	if db.Index().Contains("e1", "tag", "person") {
		t.Fatal("expected e1/tag/person absent once every provenance is removed")
	}
}

func TestCrossEvaluationPropagationViaDirectory(t *testing.T) {
	dir := database.NewDirectory()

	ev1 := New("ev1", nil, nil)
	defer ev1.Close()
	ev2 := New("ev2", nil, nil)
	defer ev2.Close()

	db1 := database.New("shared", triple.New())
	db2 := database.New("shared", triple.New())

	if err := ev1.RegisterSharedDatabase(db1, dir); err != nil {
		t.Fatalf("register db1: %v", err)
	}
	if err := ev2.RegisterSharedDatabase(db2, dir); err != nil {
		t.Fatalf("register db2: %v", err)
	}

	done := make(chan struct{})
	ev1.ExecuteActions([]action.Action{
		action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			changes.Store("shared", "e1", "tag", "person", "seed")
			return nil
		}),
	}, nil, func([]changeset.Entry) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ev1's fixpoint to quiesce")
	}

	waitFor(t, 2*time.Second, func() bool {
		return db2.Index().Contains("e1", "tag", "person")
	})
}
