// Package overlay defines the materialized (dirty) state an inode carries
// once it has diverged from the clean object the local store resolved for
// it, and a reference in-memory implementation of that state used by tests
// and by mounts that do not need durability across restarts.
//
// The duality it models — an immutable initial view that is upgraded,
// lazily and once, into a writable view the instant anything touches it —
// mirrors the clean/dirty split every materialized inode in this filesystem
// needs: a directory whose children have been added to or removed from, or
// a file whose bytes have been written to, is dirty from that point on and
// must be flushed back into a new content hash rather than ever being
// served from its original object again.
package overlay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/edenfs-go/edenfs/objhash"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

// Child names one materialized directory entry.
type Child struct {
	Name string
	Mode filemode.FileMode
	Hash objhash.Hash
}

// Overlay is the materialized state of a single inode: either a file's
// byte content or a directory's child list, whichever the inode kind calls
// for. A single concrete implementation backs both uses; directory methods
// on a file overlay (and vice versa) are programmer errors, not user-facing
// ones, so they panic rather than returning an error.
type Overlay interface {
	// ReadAt behaves like io.ReaderAt. Valid only for a file overlay.
	ReadAt(buf []byte, offset int64) (n int, err error)

	// WriteAt behaves like io.WriterAt, materializing on first use. Valid
	// only for a file overlay.
	WriteAt(buf []byte, offset int64) (n int, err error)

	// Truncate resizes the file overlay to n bytes, zero-extending if
	// n is larger than the current size. Valid only for a file overlay.
	Truncate(n int64) error

	// Size returns the current logical size of a file overlay.
	Size() int64

	// ListChildren returns a directory overlay's materialized children in
	// name order. Valid only for a directory overlay.
	ListChildren() []Child

	// SetChild adds or replaces a directory overlay's entry for c.Name.
	SetChild(c Child)

	// RemoveChild removes a directory overlay's entry for name, if present.
	RemoveChild(name string)

	// Dirty reports whether this overlay has diverged from its initial
	// clean content and therefore needs to be flushed to obtain a new hash.
	Dirty() bool
}

// MemOverlay is an in-memory Overlay. It is safe for concurrent use; callers
// normally already hold the owning inode's lock, but internal bookkeeping
// (notably Dirty) is kept consistent either way.
type MemOverlay struct {
	mu sync.Mutex

	isDir bool

	// file state
	content []byte
	dirty   bool

	// directory state
	children map[string]Child
}

// NewFileOverlay returns a file overlay pre-populated with initial content.
// It is not yet dirty: reads are served straight from initial until the
// first write or truncate.
func NewFileOverlay(initial []byte) *MemOverlay {
	buf := make([]byte, len(initial))
	copy(buf, initial)
	return &MemOverlay{content: buf}
}

// NewDirOverlay returns a directory overlay pre-populated with the given
// children. It is not yet dirty: SetChild/RemoveChild mark it so.
func NewDirOverlay(initial []Child) *MemOverlay {
	m := &MemOverlay{isDir: true, children: make(map[string]Child, len(initial))}
	for _, c := range initial {
		m.children[c.Name] = c
	}
	return m
}

func (m *MemOverlay) ReadAt(buf []byte, offset int64) (int, error) {
	m.mustBeFile()
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset >= int64(len(m.content)) {
		return 0, nil
	}
	n := copy(buf, m.content[offset:])
	return n, nil
}

func (m *MemOverlay) WriteAt(buf []byte, offset int64) (int, error) {
	m.mustBeFile()
	m.mu.Lock()
	defer m.mu.Unlock()

	end := offset + int64(len(buf))
	if end > int64(len(m.content)) {
		grown := make([]byte, end)
		copy(grown, m.content)
		m.content = grown
	}
	n := copy(m.content[offset:end], buf)
	m.dirty = true
	return n, nil
}

func (m *MemOverlay) Truncate(n int64) error {
	m.mustBeFile()
	m.mu.Lock()
	defer m.mu.Unlock()

	if n < 0 {
		return fmt.Errorf("overlay: negative truncate size %d", n)
	}
	if n <= int64(len(m.content)) {
		m.content = m.content[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, m.content)
		m.content = grown
	}
	m.dirty = true
	return nil
}

func (m *MemOverlay) Size() int64 {
	m.mustBeFile()
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.content))
}

func (m *MemOverlay) ListChildren() []Child {
	m.mustBeDir()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Child, 0, len(m.children))
	for _, c := range m.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemOverlay) SetChild(c Child) {
	m.mustBeDir()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[c.Name] = c
	m.dirty = true
}

func (m *MemOverlay) RemoveChild(name string) {
	m.mustBeDir()
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.children, name)
	m.dirty = true
}

func (m *MemOverlay) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *MemOverlay) mustBeFile() {
	if m.isDir {
		panic("overlay: file method called on a directory overlay")
	}
}

func (m *MemOverlay) mustBeDir() {
	if !m.isDir {
		panic("overlay: directory method called on a file overlay")
	}
}
