// Package remoteblock provides an example block.Remote implementation that
// hands a block's derivation to an out-of-band worker over Redis pub/sub,
// demonstrating the suspend/resume contract of §4.4 against a real
// transport rather than an in-process stub.
package remoteblock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evalgo-org/eve/block"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/eval"
	"github.com/evalgo-org/eve/multiindex"
)

// job is the wire payload published to the request channel. Execute fills
// only BlockID; Db, E, A and V are left empty, so the job does not tell the
// worker which entity the block fired on.
type job struct {
	BlockID string      `json:"block_id"`
	Db      string      `json:"db"`
	E       interface{} `json:"e"`
	A       interface{} `json:"a"`
	V       interface{} `json:"v"`
}

// response is the wire payload a worker publishes back: the block's
// derived changes, in the same shape as a committed delta entry.
type response struct {
	BlockID string            `json:"block_id"`
	Entries []changeset.Entry `json:"entries"`
}

// Block is a block.Remote backed by Redis pub/sub. Execute publishes a job
// and returns immediately; a worker running elsewhere (possibly another
// process) does the actual derivation and publishes a response, which
// Listen delivers back into the owning evaluation via OnRemoteChanges.
type Block struct {
	id      string
	dormant bool
	checker block.Checker

	rdb             *redis.Client
	requestChannel  string
	responseChannel string
}

// New builds a Redis-backed remote block. requestChannel is where jobs are
// published; responseChannel is where this block's own derived changes
// are expected back.
func New(id string, checker block.Checker, rdb *redis.Client, requestChannel, responseChannel string) *Block {
	return &Block{
		id:              id,
		checker:         checker,
		rdb:             rdb,
		requestChannel:  requestChannel,
		responseChannel: responseChannel,
	}
}

// ID implements block.Block.
func (b *Block) ID() string { return b.id }

// Dormant implements block.Block.
func (b *Block) Dormant() bool { return b.dormant }

// SetDormant toggles the dormant flag.
func (b *Block) SetDormant(v bool) { b.dormant = v }

// Checker implements block.Block.
func (b *Block) Checker() block.Checker { return b.checker }

// IsRemoteBlock implements block.Remote.
func (b *Block) IsRemoteBlock() bool { return true }

// Execute publishes a single "activation" job naming the block; it does not
// publish the changed triples, so the worker has to inspect the database
// state over its own connection to decide what to derive. It never blocks
// waiting for the response.
func (b *Block) Execute(ns *multiindex.Namespace, changes *changeset.Set) error {
	payload, err := json.Marshal(job{BlockID: b.id})
	if err != nil {
		return fmt.Errorf("remoteblock: marshal job: %w", err)
	}
	return b.rdb.Publish(context.Background(), b.requestChannel, payload).Err()
}

// Listen subscribes to the response channel and delivers every response
// addressed to this block into ev via OnRemoteChanges, until ctx is
// cancelled. Run it in its own goroutine once per evaluation that
// registers this block.
func (b *Block) Listen(ctx context.Context, ev *eval.Evaluation) error {
	sub := b.rdb.Subscribe(ctx, b.responseChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var resp response
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				continue
			}
			if resp.BlockID != b.id {
				continue
			}
			if err := ev.OnRemoteChanges(b.id, resp.Entries); err != nil {
				return err
			}
		}
	}
}
