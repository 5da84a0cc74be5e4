// Package action defines the abstract "write to change set" contract used
// to stage external inputs before a fixpoint run (§6).
package action

import (
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/multiindex"
)

// Binding is one scratch entry an action's join-producing execution may
// record, e.g. a variable binding produced mid-action. The core always
// passes an empty scratch list; actions that don't join ignore it.
type Binding map[string]interface{}

// Action is the external-input contract: "write to change set". Execute
// stages the action's effect (insertions/removals) into changes; scratch is
// a per-action list of bindings for join-producing actions.
type Action interface {
	Execute(ns *multiindex.Namespace, scratch []Binding, changes *changeset.Set) error
}

// Func adapts a plain function to the Action interface, mirroring the
// corpus's habit of offering a func-adapter alongside the interface for
// simple, stateless actions.
type Func func(ns *multiindex.Namespace, scratch []Binding, changes *changeset.Set) error

// Execute implements Action.
func (f Func) Execute(ns *multiindex.Namespace, scratch []Binding, changes *changeset.Set) error {
	return f(ns, scratch, changes)
}
