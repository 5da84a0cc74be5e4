package eval

import (
	"fmt"

	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/block"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/database"
	"github.com/evalgo-org/eve/everr"
	"github.com/evalgo-org/eve/metrics"
	"github.com/evalgo-org/eve/triple"
)

// runFixpoint drives item from Seeding through rounds until it quiesces,
// diverges, parks awaiting remote blocks, or a collaborator fails (§4.6).
func (ev *Evaluation) runFixpoint(item *WorkItem) {
	changes := item.Changes

	if err := ev.stageSeed(item); err != nil {
		ev.abandon(item, err, "seed")
		return
	}

	seedDelta := changes.Commit(ev.ns)
	metrics.RecordCommit(ev.metrics, len(seedDelta))

	blockSet := ev.filterBlocks(changes, seedDelta)
	ev.loopRounds(item, blockSet)
}

// stageSeed implements the Seeding state: Commit items replay their delta
// as store/unstore pairs; Actions items run each action against the change
// set.
func (ev *Evaluation) stageSeed(item *WorkItem) error {
	switch item.Kind {
	case KindCommit:
		for _, e := range item.Delta {
			switch e.Change {
			case changeset.Added:
				item.Changes.Store(e.Db, e.E, e.A, e.V, e.N)
			case changeset.Removed:
				item.Changes.Unstore(e.Db, e.E, e.A, e.V, e.N)
			}
		}
		return nil
	case KindActions:
		for _, a := range item.Actions {
			if err := ev.safeExecuteAction(a, item.Changes); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// recoverToError turns a recovered panic value into an error, so a
// panicking block or action degrades to the same CollaboratorFailure path
// as one that returns an error (§7 kind 3) instead of crashing the
// drainLoop goroutine.
func recoverToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// safeExecuteAction runs a's Execute, recovering a panic into an error.
func (ev *Evaluation) safeExecuteAction(a action.Action, changes *changeset.Set) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
		}
	}()
	return a.Execute(ev.ns, nil, changes)
}

// safeExecuteBlock runs b's Execute, recovering a panic into an error.
func (ev *Evaluation) safeExecuteBlock(b block.Block, changes *changeset.Set) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToError(r)
		}
	}()
	return b.Execute(ev.ns, changes)
}

// loopRounds runs rounds 1..MaxRounds against blockSet, committing after
// every pass with no outstanding remote blocks, until the change set stops
// producing a non-empty delta, the divergence cap is hit, or a remote block
// parks the round (§4.6 transitions 1-5).
func (ev *Evaluation) loopRounds(item *WorkItem, blockSet []block.Block) {
	changes := item.Changes

	for {
		round := changes.NextRound()

		// Mark every remote block awaited before executing any of them:
		// a remote block's response may race the rest of this loop on
		// another goroutine, so waitingFor/waitingCount must be complete
		// under ev.mu before Execute can possibly trigger a resolution.
		remote := make([]string, 0, len(blockSet))
		for _, b := range blockSet {
			if b.Dormant() {
				continue
			}
			if rb, ok := b.(block.Remote); ok && rb.IsRemoteBlock() {
				remote = append(remote, b.ID())
			}
		}
		ev.mu.Lock()
		item.waitingFor = make(map[string]bool, len(remote))
		for _, id := range remote {
			item.waitingFor[id] = true
		}
		item.waitingCount = len(remote)
		ev.mu.Unlock()

		timer := metrics.StartRound(ev.metrics)
		for _, b := range blockSet {
			if b.Dormant() {
				continue
			}
			if err := ev.safeExecuteBlock(b, changes); err != nil {
				timer.Stop()
				ev.abandon(item, err, b.ID())
				return
			}
			metrics.RecordBlockRun(ev.metrics, b.ID())
		}
		timer.Stop()

		ev.mu.Lock()
		stillWaiting := item.waitingCount > 0
		ev.mu.Unlock()
		if stillWaiting {
			// Awaiting: state preserved verbatim on item/changes until
			// OnRemoteChanges delivers every outstanding response (§5).
			return
		}

		delta := changes.Commit(ev.ns)
		metrics.RecordCommit(ev.metrics, len(delta))

		if ev.settleOrContinue(item, round, delta, &blockSet) {
			return
		}
	}
}

// OnRemoteChanges delivers a remote block's derived changes (§4.4). It is a
// precondition violation to deliver for a block not currently awaited.
func (ev *Evaluation) OnRemoteChanges(blockID string, entries []changeset.Entry) error {
	ev.mu.Lock()
	item := ev.currentItem
	if item == nil || !item.waitingFor[blockID] {
		ev.mu.Unlock()
		return everr.NewPrecondition("eval.OnRemoteChanges", "block "+blockID+" is not currently awaited")
	}
	delete(item.waitingFor, blockID)
	item.waitingCount--
	remaining := item.waitingCount
	ev.mu.Unlock()

	for _, e := range entries {
		switch e.Change {
		case changeset.Added:
			item.Changes.Store(e.Db, e.E, e.A, e.V, e.N)
		case changeset.Removed:
			item.Changes.Unstore(e.Db, e.E, e.A, e.V, e.N)
		}
	}

	if remaining > 0 {
		return nil
	}

	ev.resumeAfterAwait(item)
	return nil
}

// resumeAfterAwait is step 5's "last response arrives" path: commit the
// merged pending entries, then resume the round loop at the next round.
func (ev *Evaluation) resumeAfterAwait(item *WorkItem) {
	changes := item.Changes

	delta := changes.Commit(ev.ns)
	metrics.RecordCommit(ev.metrics, len(delta))

	round := changes.Round()
	if ev.settleOrContinue(item, round, delta, nil) {
		return
	}

	blockSet := ev.filterBlocks(changes, delta)
	ev.loopRounds(item, blockSet)
}

// settleOrContinue checks the Quiescent/Diverged exit conditions after a
// commit. It returns true if the fixpoint ended (quiesced or diverged), in
// which case it has already called finish. Otherwise it computes the next
// block set into *nextBlockSet (when non-nil) for the caller's loop to
// continue with.
func (ev *Evaluation) settleOrContinue(item *WorkItem, round int, delta []changeset.Entry, nextBlockSet *[]block.Block) bool {
	changes := item.Changes

	if round >= ev.maxRounds && changes.Changed() {
		metrics.RecordDivergence(ev.metrics)
		ev.report(everr.DivergenceKind, (&everr.Divergence{Rounds: round}).Error())
		ev.finish(item, delta)
		return true
	}

	if !changes.Changed() {
		ev.finish(item, delta)
		return true
	}

	if nextBlockSet != nil {
		*nextBlockSet = ev.filterBlocks(changes, delta)
	}
	return false
}

type tagCacheEntry struct {
	idx  *triple.Index
	tags map[interface{}]struct{}
}

// filterBlocks implements the activation filter scan (§4.5): for each
// non-executing-excluded database's non-dormant blocks, scan the commit's
// changed triples and stop at the first one the block's checker accepts.
// Tag lookups are cached per (database, entity) for the scan's duration.
func (ev *Evaluation) filterBlocks(changes *changeset.Set, delta []changeset.Entry) []block.Block {
	dbs := ev.Databases()
	cache := make(map[string]*tagCacheEntry)

	var result []block.Block
	seen := make(map[string]bool)

	for _, d := range dbs {
		if d.NonExecuting() {
			continue
		}
		for _, b := range d.Blocks() {
			if b.Dormant() || seen[b.ID()] {
				continue
			}
			for _, e := range delta {
				ck := e.Db + "\x00" + sprintKey(e.E)
				c, ok := cache[ck]
				if !ok {
					idx, found := ev.ns.Lookup(e.Db)
					if !found {
						continue
					}
					c = &tagCacheEntry{idx: idx, tags: changes.MergedTags(e.Db, idx, e.E)}
					cache[ck] = c
				}
				if b.Checker().Check(c.idx, e.Change, c.tags, e.E, e.A, e.V) {
					result = append(result, b)
					seen[b.ID()] = true
					break
				}
			}
		}
	}
	return result
}

func sprintKey(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// finish implements the quiescent/diverged tail shared by both outcomes:
// notify every registered database's fixpoint hook, invoke the item's
// callback, and clear the current-item slot so the next queued item can
// drain (§4.6 "On quiescence").
func (ev *Evaluation) finish(item *WorkItem, delta []changeset.Entry) {
	for _, d := range ev.Databases() {
		d.OnFixpoint(ev, delta)
	}
	if item.Callback != nil {
		item.Callback(delta)
	}
	ev.clearCurrent()
}

// abandon implements §7 kind 3: a failing collaborator is never retried;
// the fixpoint is abandoned, its pending stage discarded, and the slot
// cleared so later work items can proceed.
func (ev *Evaluation) abandon(item *WorkItem, cause error, who string) {
	cf := &everr.CollaboratorFailure{BlockOrAction: who, Cause: cause}
	ev.report("Collaborator Failure", cf.Error())
	item.Changes.Reset()
	ev.clearCurrent()
}

func (ev *Evaluation) clearCurrent() {
	ev.mu.Lock()
	ev.currentItem = nil
	ev.mu.Unlock()
	ev.scheduleDrain()
}

var _ database.Peer = (*Evaluation)(nil)
