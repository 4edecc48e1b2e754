// Package inodemap implements the Inode Map: the live-inode table the
// Dispatcher consults on every kernel op, generalized from the teacher's
// fileSystem.inodes table (fs/fs.go) from "GCS generation staleness" to
// "source-hash vs overlay staleness", and split out from the Dispatcher's
// single giant lock into its own component with documented lock ordering.
package inodemap

import (
	"context"
	"fmt"
	"sync"

	"github.com/edenfs-go/edenfs/fs/inode"
	"github.com/edenfs-go/edenfs/management"
	"github.com/edenfs-go/edenfs/scmerr"
	"github.com/jacobsa/fuse/fuseops"
)

// Factory mints a new inode for the given id/name/hash/mode combination.
// The Dispatcher supplies one implementation that type-switches on the
// git file mode to decide between inode.NewTreeInode and
// inode.NewFileInode.
type Factory func(id fuseops.InodeID, name string, entry Entry) inode.Inode

// Entry is the minimal description of a to-be-minted child: enough for the
// Factory to decide the kind and seed it with its clean source.
type Entry struct {
	IsDir bool
	Hash  [20]byte
}

// key identifies a (parent, name) pair awaiting a single-flight load.
type key struct {
	parent fuseops.InodeID
	name   string
}

// pendingLoad is the shared outcome of one in-flight LookUpOrCreateChild
// call: every waiter that arrives while it is in flight blocks on cond and,
// once woken, reads the same (in, err) the first caller produced instead of
// calling resolve again.
type pendingLoad struct {
	cond *sync.Cond
	in   inode.Inode
	err  error
}

// Map is the Inode Map: a monotonically-allocated inode-number space, the
// live inode table, and single-flight coalescing of concurrent lookups for
// the same (parent, name).
type Map struct {
	mu sync.Mutex

	nextID fuseops.InodeID
	table  map[fuseops.InodeID]inode.Inode

	// byKey/byID track the currently-loaded inode number for each
	// (parent, name) pair, so a repeated lookup of the same name (an
	// ordinary re-lookup, or a lookup immediately following a rename)
	// finds the existing inode instead of minting a new number for it.
	// Both are kept in sync under mu: populated on mint, moved on Rename,
	// and dropped together when Unload actually destroys the entry.
	byKey map[key]fuseops.InodeID
	byID  map[fuseops.InodeID]key

	// inFlight coalesces concurrent LookUpOrCreateChild calls for the same
	// (parent, name), mirroring google-slothfs's fetchingCond pattern:
	// the first caller does the work and broadcasts; everyone else waits
	// and reuses its result rather than resolving a second time.
	inFlight map[key]*pendingLoad

	factory Factory
}

// New constructs a Map whose root inode is already registered at
// fuseops.RootInodeID (the kernel always addresses the root by this fixed
// ID, never by LookUpInode).
func New(root inode.Inode, factory Factory) *Map {
	m := &Map{
		nextID:   fuseops.RootInodeID + 1,
		table:    make(map[fuseops.InodeID]inode.Inode),
		byKey:    make(map[key]fuseops.InodeID),
		byID:     make(map[fuseops.InodeID]key),
		inFlight: make(map[key]*pendingLoad),
		factory:  factory,
	}
	m.table[fuseops.RootInodeID] = root
	management.InodesLive.Set(1)
	return m
}

// Get returns the live inode for id, or an internal error if the kernel
// referenced an ID we don't recognize (a protocol violation, not a user
// error, since IDs are only ever handed out by this map).
func (m *Map) Get(id fuseops.InodeID) (inode.Inode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.table[id]
	if !ok {
		return nil, scmerr.Internal(fmt.Sprintf("unknown inode id %d", id), nil)
	}
	return in, nil
}

// mint allocates the next inode number, constructs the inode via the
// Factory, and registers it under both the id table and the (parent,
// name) index. Must be called with m.mu held.
func (m *Map) mint(k key, e Entry) inode.Inode {
	id := m.nextID
	m.nextID++
	in := m.factory(id, k.name, e)
	m.table[id] = in
	m.byKey[k] = id
	m.byID[id] = k
	management.InodesLive.Set(float64(len(m.table)))
	return in
}

// LookUpOrCreateChild resolves (parent, name) to a live, lookup-counted
// inode: if a lookup for the same pair is already in flight, this call
// blocks on it instead of racing a duplicate mint, mirroring
// google-slothfs's fetchingCond single-flight pattern in fs/gitilesfs.go.
//
// resolve is called at most once per (parent, name) while no load is in
// flight; it must return the Entry describing the child, or an error (e.g.
// scmerr.NotFound) if no such child exists.
func (m *Map) LookUpOrCreateChild(
	ctx context.Context,
	parent fuseops.InodeID,
	name string,
	resolve func(ctx context.Context) (Entry, error),
) (inode.Inode, error) {
	k := key{parent: parent, name: name}

	m.mu.Lock()
	if id, ok := m.byKey[k]; ok {
		in := m.table[id]
		m.mu.Unlock()
		in.Lock()
		in.IncrementLookupCount()
		in.Unlock()
		return in, nil
	}
	if p, inFlight := m.inFlight[k]; inFlight {
		for m.inFlight[k] == p {
			p.cond.Wait()
		}
		m.mu.Unlock()
		if p.err != nil {
			return nil, p.err
		}
		p.in.Lock()
		p.in.IncrementLookupCount()
		p.in.Unlock()
		return p.in, nil
	}

	p := &pendingLoad{cond: sync.NewCond(&m.mu)}
	m.inFlight[k] = p
	m.mu.Unlock()

	entry, err := resolve(ctx)

	m.mu.Lock()
	if err != nil {
		p.err = err
		delete(m.inFlight, k)
		p.cond.Broadcast()
		m.mu.Unlock()
		return nil, err
	}

	in := m.mint(k, entry)
	p.in = in
	delete(m.inFlight, k)
	p.cond.Broadcast()
	m.mu.Unlock()

	in.Lock()
	in.IncrementLookupCount()
	in.Unlock()
	return in, nil
}

// Unload decrements id's lookup count by n and, if that destroys it,
// removes it from the table. Mirrors the teacher's
// unlockAndDecrementLookupCount (fs/fs.go).
func (m *Map) Unload(id fuseops.InodeID, n uint64) error {
	in, err := m.Get(id)
	if err != nil {
		return err
	}

	in.Lock()
	destroyed := in.DecrementLookupCount(n)
	in.Unlock()

	if destroyed {
		m.mu.Lock()
		delete(m.table, id)
		if k, ok := m.byID[id]; ok {
			delete(m.byKey, k)
			delete(m.byID, id)
		}
		live := len(m.table)
		m.mu.Unlock()
		management.InodesLive.Set(float64(live))
	}
	return nil
}

// UnloadUnreferenced sweeps every live inode and retries Unload(id, 0) on
// each: a no-op for anything with outstanding kernel lookups or pending
// (dirty) overlay state, but it lets a previously-dirty inode that has
// since been flushed actually leave the table, rather than waiting for its
// next real forget to notice the flush happened.
func (m *Map) UnloadUnreferenced() error {
	m.mu.Lock()
	ids := make([]fuseops.InodeID, 0, len(m.table))
	for id := range m.table {
		if id == fuseops.RootInodeID {
			continue
		}
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Unload(id, 0); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves the (parent, name) index entry for an in-mount rename from
// (oldParent, oldName) to (newParent, newName), preserving the existing
// inode object and number rather than letting a subsequent lookup mint a
// fresh one. Any inode previously indexed at the destination key (an
// overwritten target) is dropped from the index; its own lifetime is
// governed entirely by its lookup count, same as any other unlinked inode.
func (m *Map) Rename(oldParent fuseops.InodeID, oldName string, newParent fuseops.InodeID, newName string) {
	oldKey := key{parent: oldParent, name: oldName}
	newKey := key{parent: newParent, name: newName}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[newKey]; ok {
		delete(m.byKey, newKey)
		delete(m.byID, id)
	}

	id, ok := m.byKey[oldKey]
	if !ok {
		return
	}
	delete(m.byKey, oldKey)
	m.byKey[newKey] = id
	m.byID[id] = newKey
}

// InodeSnapshot is the minimal per-inode record SnapshotForTakeover
// captures: enough for a takeover collaborator to know what inode numbers
// and names existed, without reconstructing overlay content.
type InodeSnapshot struct {
	ID    fuseops.InodeID
	Name  string
	IsDir bool
}

// SnapshotForTakeover serializes the live inode table for the takeover
// collaborator. Reconstructing overlay content across a takeover is out of
// this map's scope; the snapshot exists to let the collaborator preserve
// inode identity (ID, name, kind) across the handoff.
func (m *Map) SnapshotForTakeover() []InodeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]InodeSnapshot, 0, len(m.table))
	for id, in := range m.table {
		_, isDir := in.(*inode.TreeInode)
		out = append(out, InodeSnapshot{ID: id, Name: in.Name(), IsDir: isDir})
	}
	return out
}

// RestoreFromTakeover advances the allocator past every inode number in
// snapshots, so the no-reuse invariant holds across a takeover even though
// the prior process's table is not reconstructed here. Rebuilding the
// live inode objects themselves is the takeover collaborator's job.
func (m *Map) RestoreFromTakeover(snapshots []InodeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range snapshots {
		if s.ID >= m.nextID {
			m.nextID = s.ID + 1
		}
	}
}

// LockInPairOrder locks a and b (which may be the same inode) in ascending
// inode-number order, returning the unlock function. This is the canonical
// lock order the Dispatcher's rename path uses to avoid deadlocking against
// a concurrent rename of the same two directories in the opposite
// direction.
func LockInPairOrder(a, b inode.Inode) (unlock func()) {
	if a.ID() == b.ID() {
		a.Lock()
		return a.Unlock
	}
	first, second := a, b
	if second.ID() < first.ID() {
		first, second = second, first
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
