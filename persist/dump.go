// Package persist implements save/load (§4.8): a portable quad dump format
// and an optional bbolt-backed snapshot store for durability, which is
// opt-in and orthogonal to the pure in-memory save()/load() functions.
package persist

import (
	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/database"
	"github.com/evalgo-org/eve/eval"
	"github.com/evalgo-org/eve/id"
	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/triple"
)

// Slot is one EAVN identifier slot in dump form: either a raw scalar (Raw
// set, ID zero-valued) or a decomposed identifier (ID set). Distinguishing
// the two is the "registry-defined predicate" §6 asks for.
type Slot struct {
	Raw    interface{} `json:"raw,omitempty"`
	IsID   bool        `json:"is_id,omitempty"`
	IDKind id.Kind     `json:"id_kind,omitempty"`
	IDSeq  uint64      `json:"id_seq,omitempty"`
	IDUUID string      `json:"id_uuid,omitempty"`
}

func toSlot(v interface{}) Slot {
	if v == nil {
		return Slot{}
	}
	if v, ok := v.(id.ID); ok {
		kind, seq, token := v.Parts()
		return Slot{IsID: true, IDKind: kind, IDSeq: seq, IDUUID: token}
	}
	return Slot{Raw: v}
}

func fromSlot(s Slot) interface{} {
	if s.IsID {
		return id.FromParts(s.IDKind, s.IDSeq, s.IDUUID)
	}
	return s.Raw
}

// Quad is one dumped EAVN fact in portable form.
type Quad struct {
	E Slot `json:"e"`
	A Slot `json:"a"`
	V Slot `json:"v"`
	N Slot `json:"n"`
}

// Dump is the persisted state layout of §6: database name to a sequence of
// quads.
type Dump map[string][]Quad

// Save dumps every registered database's committed quads, including
// provenance, into a portable Dump (§4.8 "save() dumps each database as a
// sequence of quads").
func Save(ev *eval.Evaluation) Dump {
	out := make(Dump)
	for _, db := range ev.Databases() {
		quads := db.ToTriples(true)
		dumped := make([]Quad, 0, len(quads))
		for _, q := range quads {
			dumped = append(dumped, Quad{
				E: toSlot(q.E),
				A: toSlot(q.A),
				V: toSlot(q.V),
				N: toSlot(q.N),
			})
		}
		out[db.Name()] = dumped
	}
	return out
}

// Load stages every quad in dump as an insertion against ev, creating any
// database named in the dump that ev does not already have registered, and
// drives a single fixpoint over the staged inserts (§4.8 "load(dump) stages
// every quad as an insertion in a fresh change set and drives a fixpoint").
// callback, if non-nil, receives the resulting committed delta.
func Load(ev *eval.Evaluation, dump Dump, callback func([]changeset.Entry)) {
	existing := make(map[string]*database.Database)
	for _, db := range ev.Databases() {
		existing[db.Name()] = db
	}

	var actions []action.Action
	for dbName, quads := range dump {
		if _, ok := existing[dbName]; !ok {
			db := database.New(dbName, triple.New())
			_ = ev.RegisterDatabase(db)
			existing[dbName] = db
		}
		dbName, quads := dbName, quads
		actions = append(actions, action.Func(func(_ *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
			for _, q := range quads {
				changes.Store(dbName, fromSlot(q.E), fromSlot(q.A), fromSlot(q.V), fromSlot(q.N))
			}
			return nil
		}))
	}

	ev.ExecuteActions(actions, nil, callback)
}
