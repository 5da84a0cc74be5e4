package database

import (
	"testing"

	"github.com/evalgo-org/eve/changeset"
	"github.com/evalgo-org/eve/triple"
)

type fakePeer struct {
	id       string
	received []changeset.Entry
}

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) EnqueueCommit(dbName string, delta []changeset.Entry) {
	p.received = append(p.received, delta...)
}

func TestRegisterDuplicateIsPreconditionViolation(t *testing.T) {
	db := New("shared", triple.New())
	p := &fakePeer{id: "ev1"}

	if err := db.Register(p); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := db.Register(p); err == nil {
		t.Fatal("expected duplicate registration to return an error")
	}
}

func TestUnregisterUnknownIsPreconditionViolation(t *testing.T) {
	db := New("shared", triple.New())
	p := &fakePeer{id: "ev1"}
	if err := db.Unregister(p); err == nil {
		t.Fatal("expected unregistering a never-registered peer to return an error")
	}
}

func TestOnFixpointFansOutToOtherPeersOnly(t *testing.T) {
	db := New("shared", triple.New())
	origin := &fakePeer{id: "e1"}
	peer := &fakePeer{id: "e2"}

	if err := db.Register(origin); err != nil {
		t.Fatalf("register origin: %v", err)
	}
	if err := db.Register(peer); err != nil {
		t.Fatalf("register peer: %v", err)
	}

	delta := []changeset.Entry{
		{Change: changeset.Added, Db: "shared", E: "e1", A: "tag", V: "t", N: "n1"},
		{Change: changeset.Added, Db: "other", E: "e1", A: "tag", V: "t", N: "n1"},
	}
	db.OnFixpoint(origin, delta)

	if len(origin.received) != 0 {
		t.Fatal("expected the originating peer not to receive its own commit")
	}
	if len(peer.received) != 1 {
		t.Fatalf("expected peer to receive exactly the 'shared'-scoped entry, got %v", peer.received)
	}
	if peer.received[0].Db != "shared" {
		t.Fatalf("expected only the 'shared' entry to fan out, got %v", peer.received[0])
	}
}

func TestOnFixpointSkipsWhenNothingBelongsToThisDatabase(t *testing.T) {
	db := New("shared", triple.New())
	origin := &fakePeer{id: "e1"}
	peer := &fakePeer{id: "e2"}
	db.Register(origin)
	db.Register(peer)

	db.OnFixpoint(origin, []changeset.Entry{{Db: "other", Change: changeset.Added}})
	if len(peer.received) != 0 {
		t.Fatal("expected no fan-out when the delta has no entries for this database")
	}
}
