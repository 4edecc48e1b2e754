// Package gitobj defines the on-disk object framing stored in the local
// store: git-compatible trees and blobs, addressed by objhash.Hash.
//
// Framing follows git's loose-object format exactly (kind, a space, decimal
// length, a NUL, then the payload) so that a store built by this package can
// be inspected with ordinary git plumbing if the payload is fed through the
// same zlib/sha1 wrapping git itself uses. We only reuse the framing, not
// git's compression; the local store is free to apply its own.
package gitobj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/edenfs-go/edenfs/objhash"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

// blobMetadataSize is the exact persisted size of a BlobMetadata record:
// 8 bytes big-endian size followed by a 20-byte content hash.
const blobMetadataSize = 8 + objhash.Size

// Kind distinguishes the two object types a tree entry can point at.
type Kind int

const (
	KindBlob Kind = iota
	KindTree
)

func (k Kind) String() string {
	if k == KindTree {
		return "tree"
	}
	return "blob"
}

// Entry is one named child of a Tree.
type Entry struct {
	Name string
	Mode filemode.FileMode
	Hash objhash.Hash
}

// Kind reports whether the entry points at a tree or a blob, derived from
// its file mode the same way git's tree entries do.
func (e Entry) Kind() Kind {
	if e.Mode == filemode.Dir {
		return KindTree
	}
	return KindBlob
}

// Tree is a named list of children. Entries keep the order they were given
// in; Encode sorts a copy by name, so two trees with identical contents
// always serialize to identical bytes and therefore hash identically.
type Tree struct {
	Entries []Entry
}

// Lookup returns the entry for name, if present.
func (t *Tree) Lookup(name string) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// sorted returns a copy of t's entries in canonical (name-sorted) order.
func (t *Tree) sorted() []Entry {
	out := make([]Entry, len(t.Entries))
	copy(out, t.Entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Encode serializes t in git's tree framing: "tree <len>\0" followed by,
// per entry, "<mode> <name>\0<20-byte hash>".
func (t *Tree) Encode() []byte {
	var body bytes.Buffer
	for _, e := range t.sorted() {
		fmt.Fprintf(&body, "%o %s\x00", modeBits(e.Mode), e.Name)
		body.Write(e.Hash[:])
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "tree %d\x00", body.Len())
	out.Write(body.Bytes())
	return out.Bytes()
}

// Hash returns the content hash of t's canonical encoding.
func (t *Tree) Hash() objhash.Hash {
	return objhash.Sum(t.Encode())
}

// DecodeTree parses bytes produced by Encode.
func DecodeTree(b []byte) (*Tree, error) {
	body, err := stripFrame(b, "tree")
	if err != nil {
		return nil, err
	}

	t := &Tree{}
	for len(body) > 0 {
		sp := bytes.IndexByte(body, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("gitobj: malformed tree entry header")
		}
		modeOctal := string(body[:sp])
		body = body[sp+1:]

		nul := bytes.IndexByte(body, 0)
		if nul < 0 {
			return nil, fmt.Errorf("gitobj: malformed tree entry name")
		}
		name := string(body[:nul])
		body = body[nul+1:]

		if len(body) < objhash.Size {
			return nil, fmt.Errorf("gitobj: truncated tree entry hash")
		}
		var h objhash.Hash
		copy(h[:], body[:objhash.Size])
		body = body[objhash.Size:]

		mode, err := parseModeBits(modeOctal)
		if err != nil {
			return nil, err
		}

		t.Entries = append(t.Entries, Entry{Name: name, Mode: mode, Hash: h})
	}

	return t, nil
}

// Blob is raw file content addressed by its hash.
type Blob struct {
	Content []byte
}

// Encode serializes b in git's blob framing: "blob <len>\0<content>".
func (b *Blob) Encode() []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, "blob %d\x00", len(b.Content))
	out.Write(b.Content)
	return out.Bytes()
}

// Hash returns the content hash of b's encoding.
func (b *Blob) Hash() objhash.Hash {
	return objhash.Sum(b.Encode())
}

// DecodeBlob parses bytes produced by (*Blob).Encode.
func DecodeBlob(raw []byte) (*Blob, error) {
	body, err := stripFrame(raw, "blob")
	if err != nil {
		return nil, err
	}
	return &Blob{Content: body}, nil
}

// BlobMetadata is the stat-only sibling of Blob: content hash and size
// without content, used to answer getattr without paging the blob in.
// Persisted form is exactly 28 bytes: 8-byte big-endian size followed by
// the 20-byte content hash.
type BlobMetadata struct {
	Hash objhash.Hash
	Size uint64
}

// Encode serializes m to its 28-byte persisted form.
func (m BlobMetadata) Encode() []byte {
	out := make([]byte, blobMetadataSize)
	binary.BigEndian.PutUint64(out[:8], m.Size)
	copy(out[8:], m.Hash[:])
	return out
}

// DecodeBlobMetadata parses a 28-byte BlobMetadata record, failing with a
// parse error that names the offending size if b isn't exactly that long.
func DecodeBlobMetadata(b []byte) (BlobMetadata, error) {
	if len(b) != blobMetadataSize {
		return BlobMetadata{}, fmt.Errorf("gitobj: blob metadata must be %d bytes, got %d", blobMetadataSize, len(b))
	}
	var m BlobMetadata
	m.Size = binary.BigEndian.Uint64(b[:8])
	copy(m.Hash[:], b[8:])
	return m, nil
}

func stripFrame(b []byte, wantKind string) ([]byte, error) {
	sp := bytes.IndexByte(b, ' ')
	if sp < 0 {
		return nil, fmt.Errorf("gitobj: missing frame header")
	}
	kind := string(b[:sp])
	if kind != wantKind {
		return nil, fmt.Errorf("gitobj: expected %q object, got %q", wantKind, kind)
	}

	rest := b[sp+1:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return nil, fmt.Errorf("gitobj: missing NUL after length")
	}

	var length int
	if _, err := fmt.Sscanf(string(rest[:nul]), "%d", &length); err != nil {
		return nil, fmt.Errorf("gitobj: bad length field: %w", err)
	}

	body := rest[nul+1:]
	if len(body) != length {
		return nil, fmt.Errorf("gitobj: length mismatch: header says %d, got %d", length, len(body))
	}
	return body, nil
}

func modeBits(m filemode.FileMode) uint32 {
	return uint32(m)
}

func parseModeBits(octal string) (filemode.FileMode, error) {
	var v uint32
	if _, err := fmt.Sscanf(octal, "%o", &v); err != nil {
		return 0, fmt.Errorf("gitobj: bad mode %q: %w", octal, err)
	}
	return filemode.FileMode(v), nil
}
