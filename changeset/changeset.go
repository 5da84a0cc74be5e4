// Package changeset implements the fixpoint driver's per-round staging
// area: an append-only multiset of proposed EAVN deltas that commits
// atomically into the target triple indexes.
package changeset

import (
	"sync"

	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/triple"
)

// Change is the sign of a committed delta entry: +1 for an insertion that
// took effect, -1 for a removal that took effect.
type Change int

const (
	Removed Change = -1
	Added   Change = 1
)

// Entry is one committed six-tuple, matching the flat layout §4.2
// describes: "[change, e, a, v, n, round, ...]". Db names the database the
// entry was staged against, so a database's fixpoint hook can pick out the
// portion of a commit that belongs to it.
type Entry struct {
	Change     Change
	Db         string
	E, A, V, N interface{}
	Round      int
}

type stageKey struct {
	db     string
	e, a, v, n interface{}
}

// Set is the per-fixpoint change set. The zero value is not usable; use New.
type Set struct {
	mu sync.Mutex

	round   int
	changed bool

	staged    map[stageKey]int
	order     []stageKey // insertion order, for deterministic commit iteration
	committed []Entry
}

// New creates a change set at round 0 with no staged or committed entries.
func New() *Set {
	return &Set{staged: make(map[stageKey]int)}
}

// Round returns the current round counter.
func (s *Set) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Changed reports the sticky "changed" flag: true whenever the current
// round produced a non-empty committed delta. Consumed and reset by the
// driver via NextRound.
func (s *Set) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Committed returns the last committed delta as a flat sequence.
func (s *Set) Committed() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.committed))
	copy(out, s.committed)
	return out
}

// Len reports the number of distinct staged keys awaiting commit.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// NextRound increments round and clears the changed flag, per §4.2's
// "nextRound() increments round and clears changed".
func (s *Set) NextRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	s.changed = false
	return s.round
}

// Store stages a +1 multiplicity for (db,e,a,v,n).
func (s *Set) Store(db string, e, a, v, n interface{}) {
	s.stage(db, e, a, v, n, 1)
}

// Unstore stages a -1 multiplicity for (db,e,a,v,n).
func (s *Set) Unstore(db string, e, a, v, n interface{}) {
	s.stage(db, e, a, v, n, -1)
}

func (s *Set) stage(db string, e, a, v, n interface{}, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stageKey{db: db, e: e, a: a, v: v, n: n}
	if _, exists := s.staged[k]; !exists {
		s.order = append(s.order, k)
	}
	s.staged[k] += delta
}

// Reset clears all staged entries without committing. Useful for
// abandoning a fixpoint after a collaborator failure (§7 kind 3).
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = make(map[stageKey]int)
	s.order = nil
}

// Commit atomically applies the net effect of every staged entry to its
// target index (looked up by database name in ns), computing the net
// delta per (db,e,a,v,n) — opposing +1/-1 pairs for the same key cancel —
// and returns the resulting committed delta. Idempotent: calling Commit
// again with no intervening Store/Unstore applies nothing and returns an
// empty delta, leaving Changed() false.
func (s *Set) Commit(ns *multiindex.Namespace) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delta []Entry
	for _, k := range s.order {
		net := s.staged[k]
		if net == 0 {
			continue
		}
		idx, ok := ns.Lookup(k.db)
		if !ok {
			continue
		}
		switch {
		case net > 0:
			if res := idx.Insert(k.e, k.a, k.v, k.n); res.Added {
				delta = append(delta, Entry{Change: Added, Db: k.db, E: k.e, A: k.a, V: k.v, N: k.n, Round: s.round})
			}
		case net < 0:
			if res := idx.Remove(k.e, k.a, k.v, k.n); res.Removed {
				delta = append(delta, Entry{Change: Removed, Db: k.db, E: k.e, A: k.a, V: k.v, N: k.n, Round: s.round})
			}
		}
	}

	s.staged = make(map[stageKey]int)
	s.order = nil
	s.committed = delta
	s.changed = len(delta) > 0

	return delta
}

// MergeRound folds another change set's pending (not-yet-committed) entries
// into this one, without committing either. Used by the remote-block
// resumption path (§4.4) to bring a suspended round's derived facts back
// into the active change set.
func (s *Set) MergeRound(other *Set) {
	other.mu.Lock()
	entries := make(map[stageKey]int, len(other.staged))
	order := make([]stageKey, len(other.order))
	copy(order, other.order)
	for k, v := range other.staged {
		entries[k] = v
	}
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range order {
		if _, exists := s.staged[k]; !exists {
			s.order = append(s.order, k)
		}
		s.staged[k] += entries[k]
	}
}

// MergedValues returns the set of V's bound to (db,e,a) in the committed
// index, unioned with any pending staged additions visible in this change
// set and minus pending removals — the "tag merge lookup" / "dangerous
// merge lookup" of §4.1. A value with a pending addition is present even if
// another provenance of it has a pending removal. The result must not be
// cached across commits: scope it to one round's activation scan and
// discard it afterward.
func (s *Set) MergedValues(db string, idx *triple.Index, e, a interface{}) map[interface{}]struct{} {
	out := make(map[interface{}]struct{})
	for _, q := range idx.Iterate(triple.Pattern{E: e, A: a, BoundE: true, BoundA: true}) {
		out[q.V] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var added []interface{}
	for _, k := range s.order {
		if k.db != db || k.e != e || k.a != a {
			continue
		}
		net := s.staged[k]
		switch {
		case net > 0:
			added = append(added, k.v)
		case net < 0:
			delete(out, k.v)
		}
	}
	for _, v := range added {
		out[v] = struct{}{}
	}
	return out
}

// MergedTags is MergedValues specialised to the distinguished "tag"
// attribute, as used by the activation filter (§4.5).
func (s *Set) MergedTags(db string, idx *triple.Index, e interface{}) map[interface{}]struct{} {
	return s.MergedValues(db, idx, e, triple.TagAttribute)
}
