package changeset

import (
	"testing"

	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/triple"
)

func newNamespace(t *testing.T, dbName string) (*multiindex.Namespace, *triple.Index) {
	t.Helper()
	ns := multiindex.New()
	idx := triple.New()
	if err := ns.Register(dbName, idx); err != nil {
		t.Fatalf("register: %v", err)
	}
	return ns, idx
}

func TestCommitNetsOpposingEntries(t *testing.T) {
	ns, idx := newNamespace(t, "main")
	s := New()

	s.Store("main", "e1", "a", "v", "n1")
	s.Unstore("main", "e1", "a", "v", "n1")

	delta := s.Commit(ns)
	if len(delta) != 0 {
		t.Fatalf("expected opposing store/unstore to cancel, got %v", delta)
	}
	if idx.Contains("e1", "a", "v") {
		t.Fatal("expected no triple committed")
	}
	if s.Changed() {
		t.Fatal("expected changed=false after a net-zero commit")
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	ns, _ := newNamespace(t, "main")
	s := New()
	s.Store("main", "e1", "a", "v", "n1")

	first := s.Commit(ns)
	if len(first) != 1 {
		t.Fatalf("expected 1 committed entry, got %d", len(first))
	}

	second := s.Commit(ns)
	if len(second) != 0 {
		t.Fatalf("expected idempotent re-commit to yield no entries, got %v", second)
	}
	if s.Changed() {
		t.Fatal("expected changed=false after the idempotent re-commit")
	}
}

func TestRoundMonotonicity(t *testing.T) {
	s := New()
	if s.Round() != 0 {
		t.Fatalf("expected initial round 0, got %d", s.Round())
	}
	r1 := s.NextRound()
	r2 := s.NextRound()
	if r1 != 1 || r2 != 2 {
		t.Fatalf("expected strictly increasing rounds 1,2; got %d,%d", r1, r2)
	}
}

func TestNextRoundClearsChanged(t *testing.T) {
	ns, _ := newNamespace(t, "main")
	s := New()
	s.Store("main", "e1", "a", "v", "n1")
	s.Commit(ns)
	if !s.Changed() {
		t.Fatal("expected changed=true after a non-empty commit")
	}
	s.NextRound()
	if s.Changed() {
		t.Fatal("expected NextRound to clear the changed flag")
	}
}

func TestMergedTagsUnionsPendingAdditions(t *testing.T) {
	idx := triple.New()
	s := New()
	idx.Insert("e1", triple.TagAttribute, "person", "n1")

	s.Store("main", "e1", triple.TagAttribute, "admin", "n2")

	tags := s.MergedTags("main", idx, "e1")
	if _, ok := tags["person"]; !ok {
		t.Fatal("expected committed tag 'person' present")
	}
	if _, ok := tags["admin"]; !ok {
		t.Fatal("expected pending tag 'admin' present")
	}
	if len(tags) != 2 {
		t.Fatalf("expected exactly 2 merged tags, got %v", tags)
	}
}

func TestMergedTagsExcludesPendingRemoval(t *testing.T) {
	idx := triple.New()
	s := New()
	idx.Insert("e1", triple.TagAttribute, "person", "n1")

	s.Unstore("main", "e1", triple.TagAttribute, "person", "n1")

	tags := s.MergedTags("main", idx, "e1")
	if _, ok := tags["person"]; ok {
		t.Fatal("expected pending removal to hide the committed tag")
	}
}

func TestMergeRoundFoldsPendingEntries(t *testing.T) {
	ns, _ := newNamespace(t, "main")
	a := New()
	b := New()

	b.Store("main", "e1", "a", "v", "n1")
	a.MergeRound(b)

	delta := a.Commit(ns)
	if len(delta) != 1 {
		t.Fatalf("expected folded entry to commit, got %v", delta)
	}
}
