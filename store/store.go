// Package store implements the Local Store: a single bbolt database holding
// one bucket per logical key space (trees, blobs, blob metadata, journal
// records, and the hg-proxy-hash and hg-commit-to-tree indices).
package store

import (
	"fmt"

	"github.com/edenfs-go/edenfs/objhash"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTrees          = []byte("trees")
	bucketBlobs          = []byte("blobs")
	bucketBlobMeta       = []byte("blob_metadata")
	bucketJournal        = []byte("journal")
	bucketHgProxyHash    = []byte("hg_proxy_hash")
	bucketHgCommitToTree = []byte("hg_commit_to_tree")

	allBuckets = [][]byte{
		bucketTrees, bucketBlobs, bucketBlobMeta, bucketJournal,
		bucketHgProxyHash, bucketHgCommitToTree,
	}

	// ephemeralBuckets may be erased and rebuilt on demand from the backing
	// importer; persistentBuckets must survive a ClearCaches/reclaim.
	ephemeralBuckets  = [][]byte{bucketBlobs, bucketBlobMeta, bucketHgCommitToTree}
	persistentBuckets = [][]byte{bucketTrees, bucketHgProxyHash}
)

// Store is the durable, content-addressed key/value backing for the local
// object cache and its auxiliary indices.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a Store backed by the bbolt file at
// path, and ensures every key space bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTree writes the framed tree bytes under h, replacing any existing value.
func (s *Store) PutTree(h objhash.Hash, framed []byte) error {
	return s.put(bucketTrees, h[:], framed)
}

// GetTree returns the framed tree bytes for h, or (nil, false) if absent.
func (s *Store) GetTree(h objhash.Hash) ([]byte, bool, error) {
	return s.get(bucketTrees, h[:])
}

// PutBlob writes the framed blob bytes under h, replacing any existing value.
func (s *Store) PutBlob(h objhash.Hash, framed []byte) error {
	return s.put(bucketBlobs, h[:], framed)
}

// GetBlob returns the framed blob bytes for h, or (nil, false) if absent.
func (s *Store) GetBlob(h objhash.Hash) ([]byte, bool, error) {
	return s.get(bucketBlobs, h[:])
}

// PutBlobMetadata caches the stat-only projection of a blob (content hash,
// size) so that getattr on a clean file need not page in its full content.
func (s *Store) PutBlobMetadata(h objhash.Hash, encoded []byte) error {
	return s.put(bucketBlobMeta, h[:], encoded)
}

// GetBlobMetadata returns the cached stat-only projection for h.
func (s *Store) GetBlobMetadata(h objhash.Hash) ([]byte, bool, error) {
	return s.get(bucketBlobMeta, h[:])
}

// PutBlobWithMetadata writes the framed blob bytes and its 28-byte
// BlobMetadata record in a single bbolt transaction, per the put-blob
// protocol: a reader must never observe one written without the other.
func (s *Store) PutBlobWithMetadata(h objhash.Hash, framed []byte, metadata []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Put(h[:], framed); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobMeta).Put(h[:], metadata)
	})
}

// PutHgProxyHash stores an opaque proxy-hash record, preserved across
// ClearCaches since HgProxyHash is a persistent key space.
func (s *Store) PutHgProxyHash(key, value []byte) error {
	return s.put(bucketHgProxyHash, key, value)
}

// GetHgProxyHash returns the proxy-hash record for key, if present.
func (s *Store) GetHgProxyHash(key []byte) ([]byte, bool, error) {
	return s.get(bucketHgProxyHash, key)
}

// PutHgCommitToTree stores an opaque commit-to-tree index record. Unlike
// HgProxyHash, this key space is ephemeral: it is dropped by ClearCaches
// and rebuilt on demand from the backing importer.
func (s *Store) PutHgCommitToTree(key, value []byte) error {
	return s.put(bucketHgCommitToTree, key, value)
}

// GetHgCommitToTree returns the commit-to-tree record for key, if present.
func (s *Store) GetHgCommitToTree(key []byte) ([]byte, bool, error) {
	return s.get(bucketHgCommitToTree, key)
}

// HasKey reports whether h is present in the given key space without
// reading its value.
func (s *Store) HasKey(bucket []byte, h objhash.Hash) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(h[:])
		found = v != nil
		return nil
	})
	return found, err
}

func (s *Store) put(bucket []byte, key []byte, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

func (s *Store) get(bucket []byte, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// WriteJournalRecord writes a journal record; the journal key space is append-only
// and keyed by monotonically increasing sequence number rather than by hash.
func (s *Store) WriteJournalRecord(seq uint64, payload []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournal).Put(seqKey(seq), payload)
	})
}

// ForEachJournalRecord iterates journal records in ascending sequence order,
// starting at (and including) from.
func (s *Store) ForEachJournalRecord(from uint64, fn func(seq uint64, payload []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil; k, v = c.Next() {
			if err := fn(decodeSeqKey(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEachTree iterates every stored tree's hash and framed bytes. Order is
// bbolt's key order (lexicographic over the raw hash bytes), not insertion
// order.
func (s *Store) ForEachTree(fn func(h objhash.Hash, framed []byte) error) error {
	return s.forEach(bucketTrees, fn)
}

// ForEachBlob iterates every stored blob's hash and framed bytes.
func (s *Store) ForEachBlob(fn func(h objhash.Hash, framed []byte) error) error {
	return s.forEach(bucketBlobs, fn)
}

func (s *Store) forEach(bucket []byte, fn func(h objhash.Hash, framed []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var h objhash.Hash
			copy(h[:], k)
			if err := fn(h, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBlob removes a blob and its cached metadata, used by gc to reclaim
// objects no tree reachable from a live root points at.
func (s *Store) DeleteBlob(h objhash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Delete(h[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobMeta).Delete(h[:])
	})
}

// DeleteTree removes a tree, used by gc to reclaim trees no live root points
// at.
func (s *Store) DeleteTree(h objhash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrees).Delete(h[:])
	})
}

// ClearCaches drops every ephemeral key space (blobs, blob metadata,
// hg-commit-to-tree), leaving the persistent ones (trees, hg-proxy-hash)
// and the journal intact. Used when the backing import source has been
// rebuilt and every cached object must be re-fetched.
func (s *Store) ClearCaches() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range ephemeralBuckets {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearCachesAndCompactAll clears every ephemeral key space and then calls
// CompactStorage, which does nothing; no key space is compacted.
func (s *Store) ClearCachesAndCompactAll() error {
	if err := s.ClearCaches(); err != nil {
		return err
	}
	return s.CompactStorage()
}

// CompactStorage is a no-op that returns nil. Space bbolt has freed
// internally is not returned to the filesystem.
func (s *Store) CompactStorage() error {
	return nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	for i := 0; i < 8; i++ {
		k[7-i] = byte(seq >> (8 * i))
	}
	return k
}

func decodeSeqKey(k []byte) uint64 {
	var seq uint64
	for i := 0; i < 8 && i < len(k); i++ {
		seq = seq<<8 | uint64(k[i])
	}
	return seq
}
