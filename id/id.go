// Package id mints the opaque identifiers used as Entity and Value slots
// in EAVN quads and round-trips them through save/load.
package id

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind distinguishes the family an ID was minted for, so a decomposed ID
// can be reconstructed into the right Go value on load.
type Kind string

const (
	// KindEntity identifies entity ids minted for new records.
	KindEntity Kind = "entity"
	// KindValue identifies value ids minted when a value itself needs identity
	// (e.g. a nested object rather than a raw scalar).
	KindValue Kind = "value"
	// KindNode identifies provenance node ids minted for blocks/inputs.
	KindNode Kind = "node"
)

// ID is an opaque, comparable identifier. It satisfies the data model's
// requirement that entity/value slots "may be minted identifiers
// (distinguishable from raw scalars) that survive save/load via a
// decomposition into constituent parts".
type ID struct {
	kind Kind
	seq  uint64
	uuid string
}

// IsID reports whether v is a minted identifier, as opposed to a raw scalar.
// This is the "registry-defined predicate" §6 requires for distinguishing
// identifier slots from raw scalars in the persisted layout.
func IsID(v interface{}) bool {
	_, ok := v.(ID)
	return ok
}

// Kind returns the identifier's minting kind.
func (i ID) Kind() Kind { return i.kind }

// String renders a stable, human-readable form used for logging and as a
// map key when an ID needs to act as a plain comparable value.
func (i ID) String() string {
	return fmt.Sprintf("%s:%d:%s", i.kind, i.seq, i.uuid)
}

// Parts decomposes the ID into the constituent parts saved by persist.Dump.
// Reconstructing from Parts (via FromParts) yields an ID equal to the
// original, which is what makes save/load idempotent (§8 "Idempotent load").
func (i ID) Parts() (kind Kind, seq uint64, token string) {
	return i.kind, i.seq, i.uuid
}

// FromParts reconstructs an ID previously decomposed by Parts. Used by
// persist.Load to rebuild identifier slots from a dump.
func FromParts(kind Kind, seq uint64, token string) ID {
	return ID{kind: kind, seq: seq, uuid: token}
}

// Registry mints process-wide unique IDs. The sequence counter is an atomic
// counter held by each Registry, not shared between registries, and is not
// durable; uniqueness across registries comes from the uuid token each ID
// carries.
type Registry struct {
	counter uint64
}

// NewRegistry creates an empty registry. The zero value is also usable.
func NewRegistry() *Registry {
	return &Registry{}
}

// Mint allocates a new ID of the given kind.
func (r *Registry) Mint(kind Kind) ID {
	seq := atomic.AddUint64(&r.counter, 1)
	return ID{kind: kind, seq: seq, uuid: uuid.NewString()}
}

// MintEntity is a convenience wrapper for the common case of a new entity id.
func (r *Registry) MintEntity() ID { return r.Mint(KindEntity) }

// MintNode is a convenience wrapper for minting provenance node ids.
func (r *Registry) MintNode() ID { return r.Mint(KindNode) }
