// Command eve is a thin local harness for exercising the evaluation core:
// it registers one database with a single derivation block, optionally a
// Redis-backed remote block, stages a fact, drives one fixpoint, persists
// the result to a bbolt snapshot store when a snapshot path is configured,
// and prints the resulting save()
// dump. It is not a server, protocol endpoint, or CLI product — those are
// out of scope.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evalgo-org/eve/action"
	"github.com/evalgo-org/eve/block"
	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/config"
	"github.com/evalgo-org/eve/database"
	"github.com/evalgo-org/eve/eval"
	"github.com/evalgo-org/eve/evelog"
	"github.com/evalgo-org/eve/metrics"
	"github.com/evalgo-org/eve/multiindex"
	"github.com/evalgo-org/eve/persist"
	"github.com/evalgo-org/eve/remoteblock"
	"github.com/evalgo-org/eve/triple"
)

// humanBlock is the trivial derivation from §8 scenario 2: it reads
// (e,"tag","person") and writes (e,"kind","human",<its own id>).
type humanBlock struct{}

func (humanBlock) ID() string      { return "derive-human" }
func (humanBlock) Dormant() bool   { return false }
func (humanBlock) Checker() block.Checker {
	return block.NewTagAttributeFilter(block.Pattern{Tag: "person", Attribute: triple.TagAttribute})
}

func (b humanBlock) Execute(ns *multiindex.Namespace, changes *changeset.Set) error {
	idx, ok := ns.Lookup("main")
	if !ok {
		return nil
	}
	for _, q := range idx.Iterate(triple.Pattern{A: triple.TagAttribute, V: "person", BoundA: true, BoundV: true}) {
		changes.Store("main", q.E, "kind", "human", b.ID())
	}
	return nil
}

func main() {
	cfgFile := flag.String("config", "", "path to a runtime config file (optional)")
	flag.Parse()

	rt, err := config.LoadRuntime(*cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "eve: loading config:", err)
		os.Exit(1)
	}

	logger := evelog.New(evelog.Config{Level: rt.LogLevel, Format: rt.LogFormat})
	reporter := evelog.NewReporter(logger)
	counters := metrics.New()

	db := database.New("main", triple.New())
	db.AddBlock(humanBlock{})

	ev := eval.New("ev1", reporter, counters, eval.Options{
		MaxRounds:   rt.MaxRounds,
		QueueBuffer: rt.QueueBuffer,
	})
	defer ev.Close()

	if err := ev.RegisterDatabase(db); err != nil {
		logger.WithError(err).Fatal("registering database")
	}

	// RedisAddr is opt-in: a bare local harness run has no worker listening
	// on the other end, so the remote block only goes up when a broker is
	// actually configured.
	if rt.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rt.RedisAddr})
		rb := remoteblock.New("classify-remote", block.NewTagAttributeFilter(block.Pattern{Tag: "person", Attribute: triple.TagAttribute}), rdb, "eve:classify:req", "eve:classify:resp")
		db.AddBlock(rb)

		listenCtx, cancelListen := context.WithCancel(context.Background())
		defer cancelListen()
		go func() {
			if err := rb.Listen(listenCtx, ev); err != nil && listenCtx.Err() == nil {
				logger.WithError(err).Error("remote block listener stopped")
			}
		}()
	}

	done := make(chan []changeset.Entry, 1)
	stage := action.Func(func(ns *multiindex.Namespace, _ []action.Binding, changes *changeset.Set) error {
		changes.Store("main", "e1", triple.TagAttribute, "person", "n1")
		return nil
	})

	ev.ExecuteActions([]action.Action{stage}, nil, func(delta []changeset.Entry) {
		done <- delta
	})

	select {
	case delta := <-done:
		logger.WithField("entries", len(delta)).Info("fixpoint settled")
	case <-time.After(5 * time.Second):
		logger.Error("fixpoint did not settle within timeout")
		os.Exit(1)
	}

	dump := persist.Save(ev)

	// SnapshotPath is opt-in: when configured, the dump also lands in a
	// bbolt-backed store keyed by this run's evaluation id, so a later
	// process can persist.Load it back.
	if rt.SnapshotPath != "" {
		store, err := persist.OpenBoltStore(rt.SnapshotPath)
		if err != nil {
			logger.WithError(err).Fatal("opening snapshot store")
		}
		defer store.Close()
		if err := store.Put(ev.ID(), dump); err != nil {
			logger.WithError(err).Fatal("writing snapshot")
		}
	}

	out, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("marshaling dump")
	}
	fmt.Println(string(out))
}
