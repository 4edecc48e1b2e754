// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inode

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/overlay"
	"github.com/edenfs-go/edenfs/scmerr"
	"github.com/jacobsa/fuse/fuseops"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

// DirEntry is one named child as seen by ReadDir/LookUpChild: a name, a
// file-mode-derived kind, and the hash the child would be minted from if
// not already loaded.
type DirEntry struct {
	Name string
	Mode filemode.FileMode
	Hash objhash.Hash
}

// TreeInode is a directory: while clean, its children come straight from
// the resolved Tree object; once anything below it is created, removed, or
// renamed, it materializes into an overlay.Overlay and every subsequent
// listing is served from there instead.
type TreeInode struct {
	base

	objects *objectstore.Store
	ov      *overlay.MemOverlay // nil until materialized
}

// NewRootTreeInode constructs the inode for a mount's root, which starts out
// pointing at rootHash (the zero hash for a brand new, empty checkout).
func NewRootTreeInode(objects *objectstore.Store, rootHash objhash.Hash, c clock.Clock) *TreeInode {
	return NewTreeInode(fuseops.RootInodeID, "", rootHash, objects, c)
}

// NewTreeInode constructs a clean directory inode for id, minted from the
// tree at sourceHash.
func NewTreeInode(id fuseops.InodeID, name string, sourceHash objhash.Hash, objects *objectstore.Store, c clock.Clock) *TreeInode {
	d := &TreeInode{
		base:    newBase(id, name, sourceHash, c),
		objects: objects,
	}
	d.lc.destroy = d.destroy
	d.lc.canDestroy = func() bool { return !d.dirty }
	return d
}

func (d *TreeInode) destroy() error {
	d.destroyed = true
	d.ov = nil
	return nil
}

// Destroy implements Inode.
func (d *TreeInode) Destroy() error {
	return d.destroy()
}

// Attributes implements Inode.
func (d *TreeInode) Attributes(ctx context.Context) (fuseops.InodeAttributes, error) {
	d.checkNotDestroyed()
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.FileMode(0755) | os.ModeDir,
		Mtime: d.clock.Now(),
	}, nil
}

// SetAttributes implements Inode. A size change on a directory is an invalid
// argument; mode and mtime are accepted but not applied, and the current
// attributes are returned unchanged.
func (d *TreeInode) SetAttributes(ctx context.Context, size *uint64, mode *os.FileMode, mtime *uint64) (fuseops.InodeAttributes, error) {
	d.checkNotDestroyed()
	if size != nil {
		return fuseops.InodeAttributes{}, scmerr.InvalidArgument("cannot set size on a directory")
	}
	return d.Attributes(ctx)
}

// ListChildren returns this directory's children, served from the overlay
// if materialized or from the resolved tree otherwise.
func (d *TreeInode) ListChildren(ctx context.Context) ([]DirEntry, error) {
	d.checkNotDestroyed()
	if d.ov != nil {
		children := d.ov.ListChildren()
		out := make([]DirEntry, len(children))
		for i, c := range children {
			out[i] = DirEntry{Name: c.Name, Mode: c.Mode, Hash: c.Hash}
		}
		return out, nil
	}

	if d.sourceHash.IsZero() {
		return nil, nil
	}

	tree, err := d.objects.Tree(ctx, d.sourceHash)
	if err != nil {
		return nil, scmerr.Wrap(scmerr.KindIOError, "resolving directory tree", err)
	}

	out := make([]DirEntry, len(tree.Entries))
	for i, e := range tree.Entries {
		out[i] = DirEntry{Name: e.Name, Mode: e.Mode, Hash: e.Hash}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LookUpChild resolves name to a DirEntry, or returns a not-found error.
func (d *TreeInode) LookUpChild(ctx context.Context, name string) (DirEntry, error) {
	children, err := d.ListChildren(ctx)
	if err != nil {
		return DirEntry{}, err
	}
	for _, c := range children {
		if c.Name == name {
			return c, nil
		}
	}
	return DirEntry{}, scmerr.NotFound(fmt.Sprintf("no child named %q", name))
}

// ensureMaterialized upgrades a clean directory into an overlay-backed one,
// seeding the overlay with the current tree's children. No-op if already
// materialized. Only this directory is materialized: its ancestors are left
// as they are, and the Dispatcher does not materialize them either.
func (d *TreeInode) ensureMaterialized(ctx context.Context) error {
	d.checkNotDestroyed()
	if d.ov != nil {
		return nil
	}

	var seed []overlay.Child
	if !d.sourceHash.IsZero() {
		tree, err := d.objects.Tree(ctx, d.sourceHash)
		if err != nil {
			return scmerr.Wrap(scmerr.KindIOError, "materializing directory", err)
		}
		seed = make([]overlay.Child, len(tree.Entries))
		for i, e := range tree.Entries {
			seed[i] = overlay.Child{Name: e.Name, Mode: e.Mode, Hash: e.Hash}
		}
	}

	d.ov = overlay.NewDirOverlay(seed)
	d.materialized = true
	return nil
}

// AddChild materializes this directory (if needed) and records a new child
// entry, replacing any existing entry of the same name.
func (d *TreeInode) AddChild(ctx context.Context, name string, mode filemode.FileMode, hash objhash.Hash) error {
	if err := d.ensureMaterialized(ctx); err != nil {
		return err
	}
	d.ov.SetChild(overlay.Child{Name: name, Mode: mode, Hash: hash})
	d.dirty = true
	return nil
}

// RemoveChild materializes this directory (if needed) and drops the named
// entry.
func (d *TreeInode) RemoveChild(ctx context.Context, name string) error {
	if err := d.ensureMaterialized(ctx); err != nil {
		return err
	}
	d.ov.RemoveChild(name)
	d.dirty = true
	return nil
}

// Flush serializes this directory's materialized children (if any) into a
// new Tree object, stores it, and returns its hash. Clean directories
// return their existing sourceHash unchanged.
func (d *TreeInode) Flush() (objhash.Hash, error) {
	d.checkNotDestroyed()
	if d.ov == nil {
		return d.sourceHash, nil
	}

	children := d.ov.ListChildren()
	tree := &gitobj.Tree{Entries: make([]gitobj.Entry, len(children))}
	for i, c := range children {
		tree.Entries[i] = gitobj.Entry{Name: c.Name, Mode: c.Mode, Hash: c.Hash}
	}

	h, err := d.objects.PutTree(tree)
	if err != nil {
		return objhash.Zero, scmerr.Wrap(scmerr.KindIOError, "flushing directory", err)
	}
	d.sourceHash = h
	d.dirty = false
	return h, nil
}

// IsEmpty reports whether this directory currently has zero children,
// checked by the Dispatcher before allowing an rmdir.
func (d *TreeInode) IsEmpty(ctx context.Context) (bool, error) {
	children, err := d.ListChildren(ctx)
	if err != nil {
		return false, err
	}
	return len(children) == 0, nil
}
