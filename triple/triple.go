// Package triple implements the EAVN triple index: storage and multi-axis
// lookup over Entity-Attribute-Value-Node quads, with reference-counted
// provenance so that multiple producers of the same logical fact don't
// delete it out from under one another.
package triple

import (
	"fmt"
	"sort"
	"sync"
)

// TagAttribute is the distinguished attribute used for the activation
// filter's tag-merge lookup (§4.1).
const TagAttribute = "tag"

// Quad is one EAVN fact. Entity, Attribute, and Value are opaque comparable
// scalars (often id.ID); Node carries provenance and is not part of quad
// identity for set semantics.
type Quad struct {
	E, A, V, N interface{}
}

// Pattern selects which of E, A, V are bound for Iterate. A nil field means
// unbound (wildcard).
type Pattern struct {
	E, A, V interface{}
	BoundE  bool
	BoundA  bool
	BoundV  bool
}

// provenanceSet reference-counts the node values that assert a given
// (e,a,v). The triple is logically present iff len(provenanceSet) > 0.
type provenanceSet map[interface{}]int

// Index is the EAVN triple store. Zero value is not usable; use New.
type Index struct {
	mu sync.RWMutex

	// eav[e][a][v] -> provenance refcounts for that logical triple.
	eav map[interface{}]map[interface{}]map[interface{}]provenanceSet

	// ave[a][v][e] mirrors eav for attribute/value-first lookups.
	ave map[interface{}]map[interface{}]map[interface{}]struct{}

	// vea[v][e][a] mirrors eav for value-first lookups.
	vea map[interface{}]map[interface{}]map[interface{}]struct{}
}

// New returns an empty triple index.
func New() *Index {
	return &Index{
		eav: make(map[interface{}]map[interface{}]map[interface{}]provenanceSet),
		ave: make(map[interface{}]map[interface{}]map[interface{}]struct{}),
		vea: make(map[interface{}]map[interface{}]map[interface{}]struct{}),
	}
}

// InsertResult reports whether the logical triple newly became present.
type InsertResult struct{ Added bool }

// RemoveResult reports whether the logical triple's last provenance was removed.
type RemoveResult struct{ Removed bool }

// Insert adds the quad under e's provenance n. Returns Added=true iff the
// logical (e,a,v) triple was absent before this call (accounting for
// provenance multiplicity, per §4.1).
func (ix *Index) Insert(e, a, v, n interface{}) InsertResult {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	avMap, ok := ix.eav[e]
	if !ok {
		avMap = make(map[interface{}]map[interface{}]provenanceSet)
		ix.eav[e] = avMap
	}
	vMap, ok := avMap[a]
	if !ok {
		vMap = make(map[interface{}]provenanceSet)
		avMap[a] = vMap
	}
	prov, ok := vMap[v]
	wasAbsent := !ok || len(prov) == 0
	if !ok {
		prov = make(provenanceSet)
		vMap[v] = prov
	}
	prov[n]++

	ix.indexAVE(a, v, e)
	ix.indexVEA(v, e, a)

	return InsertResult{Added: wasAbsent}
}

// Remove removes the quad's provenance n from (e,a,v). Returns Removed=true
// iff this was the last provenance for the triple (it is now logically
// absent). Removing a non-present quad is a no-op and returns Removed=false.
func (ix *Index) Remove(e, a, v, n interface{}) RemoveResult {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	avMap, ok := ix.eav[e]
	if !ok {
		return RemoveResult{}
	}
	vMap, ok := avMap[a]
	if !ok {
		return RemoveResult{}
	}
	prov, ok := vMap[v]
	if !ok || prov[n] == 0 {
		return RemoveResult{}
	}

	prov[n]--
	if prov[n] <= 0 {
		delete(prov, n)
	}
	if len(prov) > 0 {
		return RemoveResult{}
	}

	// Last provenance gone: drop the logical triple from every index.
	delete(vMap, v)
	if len(vMap) == 0 {
		delete(avMap, a)
	}
	if len(avMap) == 0 {
		delete(ix.eav, e)
	}
	ix.unindexAVE(a, v, e)
	ix.unindexVEA(v, e, a)

	return RemoveResult{Removed: true}
}

func (ix *Index) indexAVE(a, v, e interface{}) {
	vMap, ok := ix.ave[a]
	if !ok {
		vMap = make(map[interface{}]map[interface{}]struct{})
		ix.ave[a] = vMap
	}
	eSet, ok := vMap[v]
	if !ok {
		eSet = make(map[interface{}]struct{})
		vMap[v] = eSet
	}
	eSet[e] = struct{}{}
}

func (ix *Index) unindexAVE(a, v, e interface{}) {
	vMap, ok := ix.ave[a]
	if !ok {
		return
	}
	eSet, ok := vMap[v]
	if !ok {
		return
	}
	delete(eSet, e)
	if len(eSet) == 0 {
		delete(vMap, v)
	}
	if len(vMap) == 0 {
		delete(ix.ave, a)
	}
}

func (ix *Index) indexVEA(v, e, a interface{}) {
	eMap, ok := ix.vea[v]
	if !ok {
		eMap = make(map[interface{}]map[interface{}]struct{})
		ix.vea[v] = eMap
	}
	aSet, ok := eMap[e]
	if !ok {
		aSet = make(map[interface{}]struct{})
		eMap[e] = aSet
	}
	aSet[a] = struct{}{}
}

func (ix *Index) unindexVEA(v, e, a interface{}) {
	eMap, ok := ix.vea[v]
	if !ok {
		return
	}
	aSet, ok := eMap[e]
	if !ok {
		return
	}
	delete(aSet, a)
	if len(aSet) == 0 {
		delete(eMap, e)
	}
	if len(eMap) == 0 {
		delete(ix.vea, v)
	}
}

// Contains reports whether (e,a,v) is logically present, for any provenance.
func (ix *Index) Contains(e, a, v interface{}) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.containsLocked(e, a, v)
}

func (ix *Index) containsLocked(e, a, v interface{}) bool {
	avMap, ok := ix.eav[e]
	if !ok {
		return false
	}
	vMap, ok := avMap[a]
	if !ok {
		return false
	}
	prov, ok := vMap[v]
	return ok && len(prov) > 0
}

// Iterate yields matching quads in a deterministic (sorted-key) order that
// is stable across equal index states, as §4.1 requires. It does not
// include provenance multiplicity: one Quad per logical triple, with N
// reported as nil (use ToTriples to see individual provenance entries).
func (ix *Index) Iterate(p Pattern) []Quad {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Quad
	switch {
	case p.BoundE && p.BoundA && p.BoundV:
		if ix.containsLocked(p.E, p.A, p.V) {
			out = append(out, Quad{E: p.E, A: p.A, V: p.V})
		}
	case p.BoundE && p.BoundA:
		if vMap, ok := ix.eav[p.E][p.A]; ok {
			for v, prov := range vMap {
				if len(prov) > 0 {
					out = append(out, Quad{E: p.E, A: p.A, V: v})
				}
			}
		}
	case p.BoundE:
		if avMap, ok := ix.eav[p.E]; ok {
			for a, vMap := range avMap {
				for v, prov := range vMap {
					if len(prov) > 0 {
						out = append(out, Quad{E: p.E, A: a, V: v})
					}
				}
			}
		}
	case p.BoundA && p.BoundV:
		for e := range ix.ave[p.A][p.V] {
			out = append(out, Quad{E: e, A: p.A, V: p.V})
		}
	case p.BoundA:
		if vMap, ok := ix.ave[p.A]; ok {
			for v, eSet := range vMap {
				for e := range eSet {
					out = append(out, Quad{E: e, A: p.A, V: v})
				}
			}
		}
	case p.BoundV:
		if eMap, ok := ix.vea[p.V]; ok {
			for e, aSet := range eMap {
				for a := range aSet {
					out = append(out, Quad{E: e, A: a, V: p.V})
				}
			}
		}
	default:
		for e, avMap := range ix.eav {
			for a, vMap := range avMap {
				for v, prov := range vMap {
					if len(prov) > 0 {
						out = append(out, Quad{E: e, A: a, V: v})
					}
				}
			}
		}
	}

	sortQuads(out)
	return out
}

func sortQuads(qs []Quad) {
	key := func(x interface{}) string {
		switch t := x.(type) {
		case string:
			return t
		case nil:
			return ""
		default:
			return sprintStable(t)
		}
	}
	sort.Slice(qs, func(i, j int) bool {
		if ki, kj := key(qs[i].E), key(qs[j].E); ki != kj {
			return ki < kj
		}
		if ki, kj := key(qs[i].A), key(qs[j].A); ki != kj {
			return ki < kj
		}
		return key(qs[i].V) < key(qs[j].V)
	})
}

// sprintStable renders any comparable value (including id.ID, which
// implements Stringer) into a deterministic sort key.
func sprintStable(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// TagsOf returns the committed tag values currently held by e (point lookup
// on the distinguished "tag" attribute), with no pending-change merge. The
// activation filter's merge lookup (changeset.Set.MergedTags) layers
// pending changes on top of the committed tags.
func (ix *Index) TagsOf(e interface{}) map[interface{}]struct{} {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[interface{}]struct{})
	if vMap, ok := ix.eav[e][TagAttribute]; ok {
		for v, prov := range vMap {
			if len(prov) > 0 {
				out[v] = struct{}{}
			}
		}
	}
	return out
}

// ToTriples dumps the full index. If includeProvenance is true, one Quad is
// emitted per (e,a,v,n) provenance entry (for save, §4.1); otherwise one
// Quad per logical triple with N left nil.
func (ix *Index) ToTriples(includeProvenance bool) []Quad {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Quad
	for e, avMap := range ix.eav {
		for a, vMap := range avMap {
			for v, prov := range vMap {
				if !includeProvenance {
					if len(prov) > 0 {
						out = append(out, Quad{E: e, A: a, V: v})
					}
					continue
				}
				for n, count := range prov {
					for i := 0; i < count; i++ {
						out = append(out, Quad{E: e, A: a, V: v, N: n})
					}
				}
			}
		}
	}
	sortQuads(out)
	return out
}
