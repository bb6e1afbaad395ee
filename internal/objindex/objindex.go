// Package objindex is an auxiliary, non-authoritative cache that lets the
// blob ingestor (internal/blobstore) skip rehashing a file's full content
// when it has not changed since the last commit. It stores, per
// working-tree relative path, the file's size/mtime fingerprint, a cheap
// BLAKE3 "quick digest", and the SHA-256 identity + entropy that were
// computed the last time that fingerprint was observed.
//
// Grounded on the teacher's internal/store/kv.go (bbolt bucket layout,
// key -> blake3 -> sha256 chain) and internal/store/manager.go (refcounted
// shared-DB singleton), generalized from a content-addressed mapping store
// into a path-keyed fast-digest cache. The filesystem object store
// (internal/objstore) remains authoritative; this index is consulted only
// as an optimization and is safe to delete or go stale.
package objindex

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"github.com/anchorweave/anchorweave/internal/awerr"
)

var bucketFileCache = []byte("FileCache")

// Entry is one cached fingerprint->identity mapping.
type Entry struct {
	Size       int64
	ModUnixNs  int64
	QuickDigest [32]byte
	SHA256Hex  string
	Entropy    float64
	ObjectType byte // 'B', 'M', or 'L'
}

// DB wraps a bbolt database holding the FileCache bucket.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if absent) the index database at path, ensuring
// the FileCache bucket exists.
func Open(path string) (*DB, error) {
	bdb, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, awerr.Wrap(awerr.ErrIO, "open object index", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFileCache)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, awerr.Wrap(awerr.ErrIO, "initialize object index buckets", err)
	}
	return &DB{bolt: bdb}, nil
}

// Close releases the underlying bbolt database.
func (d *DB) Close() error { return d.bolt.Close() }

// QuickDigest returns a cheap BLAKE3 fingerprint of buf, used only as a
// change-detection key — never as an object identifier (SHA-256 remains
// the sole identity hash per SPEC_FULL §3).
func QuickDigest(buf []byte) [32]byte {
	return blake3.Sum256(buf)
}

// QuickDigestStream computes the same fingerprint as QuickDigest by
// streaming r, so the ingestion path never has to buffer a large file in
// memory purely to decide whether its expensive SHA-256/entropy/delta
// pipeline can be skipped.
func QuickDigestStream(r io.Reader) ([32]byte, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, awerr.Wrap(awerr.ErrIO, "stream file for quick digest", err)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Lookup returns the cached entry for relPath, if any.
func (d *DB) Lookup(relPath string) (Entry, bool, error) {
	var entry Entry
	var found bool
	err := d.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFileCache)
		raw := b.Get([]byte(relPath))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return Entry{}, false, awerr.Wrap(awerr.ErrIO, "read object index entry", err)
	}
	return entry, found, nil
}

// Put stores (or replaces) the cached entry for relPath.
func (d *DB) Put(relPath string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode object index entry: %w", err)
	}
	err = d.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFileCache)
		return b.Put([]byte(relPath), raw)
	})
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "write object index entry", err)
	}
	return nil
}

// Manager is a refcounted singleton over one index DB per node, the same
// lifecycle pattern as the teacher's store.Manager/SharedDB: multiple
// engine operations against the same node share one open bbolt handle.
type Manager struct {
	mu   sync.Mutex
	db   *DB
	path string
	refs int
}

var (
	globalMu sync.Mutex
	managers = map[string]*Manager{}
)

// SharedDB is a reference-counted handle to a Manager's DB; call Close
// when done with it.
type SharedDB struct {
	manager *Manager
	*DB
}

// GetShared opens or reuses the index DB at path, incrementing its
// refcount.
func GetShared(path string) (*SharedDB, error) {
	globalMu.Lock()
	m, ok := managers[path]
	if !ok {
		m = &Manager{path: path}
		managers[path] = m
	}
	globalMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		db, err := Open(path)
		if err != nil {
			return nil, err
		}
		m.db = db
	}
	m.refs++
	return &SharedDB{manager: m, DB: m.db}, nil
}

// Close decrements the refcount, closing the underlying DB only when no
// other caller holds it open.
func (s *SharedDB) Close() error {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs--
	if m.refs <= 0 && m.db != nil {
		err := m.db.Close()
		m.db = nil
		globalMu.Lock()
		delete(managers, m.path)
		globalMu.Unlock()
		return err
	}
	return nil
}
