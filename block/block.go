// Package block defines the abstract contract a compiled rule ("block")
// must satisfy to participate in fixpoint evaluation, and the activation
// filter that decides which blocks a commit might wake up.
package block

import (
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/triple"
)

// Block is the contract the evaluation core asks of a compiled rule. The
// join operator and compiler that produce blocks are out of scope (§1) —
// this is only the shape the driver needs.
type Block interface {
	// ID is a stable identifier, used for waitingFor bookkeeping and logs.
	ID() string

	// Dormant reports whether the block is excluded from execution.
	Dormant() bool

	// Checker is the activation filter gating this block from unnecessary
	// runs (§4.5).
	Checker() Checker

	// Execute runs the block against the committed state (via ns) plus the
	// change set's pending entries, staging any derived facts into changes.
	// Must be deterministic given identical inputs.
	Execute(ns *multiindex.Namespace, changes *changeset.Set) error
}

// Remote marks a Block whose Execute may return before its derived facts
// are ready. The driver places such a block's id in the round's waitingFor
// set unconditionally before calling Execute, and resumes only once a
// matching OnRemoteChanges delivery arrives (§4.4, §4.6 step 5).
type Remote interface {
	Block
	// IsRemoteBlock is a marker distinguishing Remote from a plain Block
	// that merely shares its method set; it always returns true.
	IsRemoteBlock() bool
}

// Checker is the per-block activation filter (§4.5): given a committed
// delta's single changed triple and the entity's merged tag set, it decides
// whether the block might observe a new binding. It must be an
// over-approximation — false negatives are a soundness violation, false
// positives only waste a round.
type Checker interface {
	Check(idx *triple.Index, ch changeset.Change, tags map[interface{}]struct{}, e, a, v interface{}) bool
}

// Pattern is one (tag, attribute) requirement a block's join patterns
// impose. Attribute == nil means the pattern's attribute is unconstrained.
type Pattern struct {
	Tag       interface{}
	Attribute interface{}
}

// TagAttributeFilter is the canonical checker from §4.5: it indexes a
// block by the (tag, attribute) pairs its patterns require and returns true
// iff the changed entity carries one of those tags on one of those
// attributes (or an unconstrained attribute).
type TagAttributeFilter struct {
	patterns []Pattern
}

// NewTagAttributeFilter builds a filter from the block's required patterns.
func NewTagAttributeFilter(patterns ...Pattern) *TagAttributeFilter {
	return &TagAttributeFilter{patterns: patterns}
}

// Check implements Checker.
func (f *TagAttributeFilter) Check(_ *triple.Index, _ changeset.Change, tags map[interface{}]struct{}, _, a, _ interface{}) bool {
	for _, p := range f.patterns {
		if _, hasTag := tags[p.Tag]; !hasTag {
			continue
		}
		if p.Attribute == nil || p.Attribute == a {
			return true
		}
	}
	return false
}

// Always is a Checker that always activates its block; useful for blocks
// with no tag-scoped patterns (e.g. blocks that scan every commit).
type Always struct{}

// Check implements Checker.
func (Always) Check(*triple.Index, changeset.Change, map[interface{}]struct{}, interface{}, interface{}, interface{}) bool {
	return true
}
