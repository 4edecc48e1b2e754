// Package objectstore implements the Object Store Facade: it resolves a
// content hash to a parsed tree or blob, consulting the Local Store first
// and falling back to a BackingImporter for objects that have never been
// fetched.
package objectstore

import (
	"context"
	"fmt"

	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
)

// BackingImporter fetches an object this mount has never seen from whatever
// source of truth backs the checkout (a remote git server, another mount,
// etc). Implementations must return the object's exact framed bytes, the
// same framing gitobj.Tree.Encode/gitobj.Blob.Encode produce, so that the
// hash the caller already has continues to address it.
type BackingImporter interface {
	ImportTree(ctx context.Context, h objhash.Hash) ([]byte, error)
	ImportBlob(ctx context.Context, h objhash.Hash) ([]byte, error)
}

// NoBackingImporter is used by standalone mounts that only ever serve
// objects already present in the local store (e.g. tests, or a mount of a
// store populated entirely by local writes).
type NoBackingImporter struct{}

func (NoBackingImporter) ImportTree(ctx context.Context, h objhash.Hash) ([]byte, error) {
	return nil, fmt.Errorf("objectstore: tree %s not available: no backing importer configured", h)
}

func (NoBackingImporter) ImportBlob(ctx context.Context, h objhash.Hash) ([]byte, error) {
	return nil, fmt.Errorf("objectstore: blob %s not available: no backing importer configured", h)
}

// Store resolves hashes to parsed objects, caching backing-importer fetches
// into the Local Store so later lookups are served locally.
type Store struct {
	local    *store.Store
	importer BackingImporter
}

// New constructs a facade over local and importer. importer may be
// NoBackingImporter{} if this mount never needs to fetch from elsewhere.
func New(local *store.Store, importer BackingImporter) *Store {
	return &Store{local: local, importer: importer}
}

// Tree resolves h to a parsed Tree, fetching and caching it via the backing
// importer if it is not already in the local store.
func (s *Store) Tree(ctx context.Context, h objhash.Hash) (*gitobj.Tree, error) {
	framed, ok, err := s.local.GetTree(h)
	if err != nil {
		return nil, fmt.Errorf("objectstore: local lookup of tree %s: %w", h, err)
	}
	if !ok {
		framed, err = s.importer.ImportTree(ctx, h)
		if err != nil {
			return nil, err
		}
		if err := s.local.PutTree(h, framed); err != nil {
			return nil, fmt.Errorf("objectstore: caching tree %s: %w", h, err)
		}
	}

	tree, err := gitobj.DecodeTree(framed)
	if err != nil {
		return nil, fmt.Errorf("objectstore: decoding tree %s: %w", h, err)
	}
	return tree, nil
}

// Blob resolves h to its raw content, fetching and caching it via the
// backing importer if it is not already in the local store.
func (s *Store) Blob(ctx context.Context, h objhash.Hash) (*gitobj.Blob, error) {
	framed, ok, err := s.local.GetBlob(h)
	if err != nil {
		return nil, fmt.Errorf("objectstore: local lookup of blob %s: %w", h, err)
	}
	if !ok {
		framed, err = s.importer.ImportBlob(ctx, h)
		if err != nil {
			return nil, err
		}
		blob, err := gitobj.DecodeBlob(framed)
		if err != nil {
			return nil, fmt.Errorf("objectstore: decoding blob %s: %w", h, err)
		}
		meta := gitobj.BlobMetadata{Hash: h, Size: uint64(len(blob.Content))}
		if err := s.local.PutBlobWithMetadata(h, framed, meta.Encode()); err != nil {
			return nil, fmt.Errorf("objectstore: caching blob %s: %w", h, err)
		}
		return blob, nil
	}

	blob, err := gitobj.DecodeBlob(framed)
	if err != nil {
		return nil, fmt.Errorf("objectstore: decoding blob %s: %w", h, err)
	}
	return blob, nil
}

// PutTree stores a locally-constructed tree (e.g. the result of a
// materialization flush) and returns its hash.
func (s *Store) PutTree(t *gitobj.Tree) (objhash.Hash, error) {
	h := t.Hash()
	if err := s.local.PutTree(h, t.Encode()); err != nil {
		return objhash.Zero, fmt.Errorf("objectstore: storing tree: %w", err)
	}
	return h, nil
}

// PutBlob stores a locally-constructed blob, along with its 28-byte
// BlobMetadata record, and returns its hash.
func (s *Store) PutBlob(b *gitobj.Blob) (objhash.Hash, error) {
	h := b.Hash()
	meta := gitobj.BlobMetadata{Hash: h, Size: uint64(len(b.Content))}
	if err := s.local.PutBlobWithMetadata(h, b.Encode(), meta.Encode()); err != nil {
		return objhash.Zero, fmt.Errorf("objectstore: storing blob: %w", err)
	}
	return h, nil
}
