package eval

import (
	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/changeset"
)

// Kind distinguishes the two variants of a queued work item (§3 "Queued
// work item").
type Kind int

const (
	// KindCommit replays a peer evaluation's committed delta.
	KindCommit Kind = iota
	// KindActions stages external actions before fixpointing.
	KindActions
)

// WorkItem is the tagged union the evaluation queue carries: either a
// Commit replay from a peer, or a batch of Actions to stage. Both variants
// carry a waitingFor set and waitingCount for remote-block suspension.
type WorkItem struct {
	Kind Kind

	// Commit variant.
	Delta []changeset.Entry

	// Actions variant.
	Actions []action.Action

	// Shared by both: the change set this item drives to fixpoint, and an
	// optional callback invoked with the final committed delta.
	Changes  *changeset.Set
	Callback func([]changeset.Entry)

	waitingFor   map[string]bool
	waitingCount int
}

func newCommitItem(delta []changeset.Entry) *WorkItem {
	return &WorkItem{Kind: KindCommit, Delta: delta, Changes: changeset.New()}
}

func newActionsItem(actions []action.Action, changes *changeset.Set, callback func([]changeset.Entry)) *WorkItem {
	if changes == nil {
		changes = changeset.New()
	}
	return &WorkItem{Kind: KindActions, Actions: actions, Changes: changes, Callback: callback}
}
