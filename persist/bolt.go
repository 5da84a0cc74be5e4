package persist

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var snapshotsBucket = []byte("snapshots")

// BoltStore persists named Dump snapshots to a single bbolt file. This is
// the opt-in durability case from the design notes: save()/load() remain
// pure in-memory operations over an Evaluation; BoltStore is a separate,
// optional layer a host may wire in to survive process restarts.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: open bolt store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: init bolt store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *BoltStore) Close() error { return s.db.Close() }

// Put writes dump under name, overwriting any existing snapshot.
func (s *BoltStore) Put(name string, dump Dump) error {
	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("persist: marshal snapshot %q: %w", name, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotsBucket).Put([]byte(name), data)
	})
}

// Get reads the snapshot stored under name. ok is false if no such
// snapshot exists.
func (s *BoltStore) Get(name string) (dump Dump, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(snapshotsBucket).Get([]byte(name))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &dump)
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist: read snapshot %q: %w", name, err)
	}
	return dump, ok, nil
}

// Names lists every snapshot name currently stored.
func (s *BoltStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist: list snapshots: %w", err)
	}
	return names, nil
}

// Delete removes the snapshot stored under name, if any.
func (s *BoltStore) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotsBucket).Delete([]byte(name))
	})
}
