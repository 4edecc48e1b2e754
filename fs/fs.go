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

// Package fs implements the Dispatcher: the fuseutil.FileSystem
// implementation that decodes each kernel op, calls through to the Inode
// Map and Inode Operations layers, and records a journal delta on every
// successful mutation.
//
// Every fuseutil.FileSystem method here is a thin decode/encode shell
// around an unexported method taking and returning plain values; the shell
// is the only thing that touches op.Respond, so the actual logic stays
// testable without a live kernel connection to back it.
//
// LOCK ORDERING: for any inode lock I, I < Dispatcher's handle-table lock.
// When two inode locks are held together (cross-directory rename), they are
// always acquired in ascending inode-number order; see
// inodemap.LockInPairOrder.
package fs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/fs/inode"
	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/inodemap"
	"github.com/edenfs-go/edenfs/journal"
	"github.com/edenfs-go/edenfs/management"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/scmerr"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

// Config configures a new Dispatcher.
type Config struct {
	// Objects resolves content hashes to trees/blobs and stores newly
	// materialized ones.
	Objects *objectstore.Store

	// RootHash is the tree this mount's root starts out pointing at. The
	// zero hash mints an empty root.
	RootHash objhash.Hash

	// JournalCapacity bounds how many deltas the journal retains before
	// evicting the oldest.
	JournalCapacity int

	// Clock is the time source inodes use for mtimes. Defaults to
	// clock.RealClock{} if left zero.
	Clock clock.Clock
}

// NewServer builds a fuse.Server backed by d. Mirrors the teacher's
// fs.NewServer(cfg) -> fuse.Server shape in fs/fs.go.
func NewServer(d *Dispatcher) fuse.Server {
	return fuseutil.NewFileSystemServer(d)
}

// dirHandle is the server-side state for one OpenDir/ReadDir/ReleaseDirHandle
// session: a stable snapshot of the directory's children taken at OpenDir
// time, per the dispatcher's documented "stable listing for the handle's
// lifetime" contract.
type dirHandle struct {
	entries []inode.DirEntry
}

// Dispatcher implements fuseutil.FileSystem atop an inodemap.Map and the
// Inode Operations layer.
type Dispatcher struct {
	fuseutil.NotImplementedFileSystem

	objects *objectstore.Store
	journal *journal.Journal
	clock   clock.Clock

	mu         sync.Mutex // guards handle allocation and dirHandles only
	nextHandle fuseops.HandleID
	dirHandles map[fuseops.HandleID]*dirHandle

	inodes *inodemap.Map
}

// New constructs a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}

	d := &Dispatcher{
		objects:    cfg.Objects,
		journal:    journal.New(cfg.JournalCapacity),
		clock:      c,
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
		nextHandle: 1,
	}

	root := inode.NewRootTreeInode(cfg.Objects, cfg.RootHash, c)
	d.inodes = inodemap.New(root, d.mintChild)
	return d
}

// Journal exposes the dispatcher's journal to callers outside the package;
// the mount command reads its NextSeq for the management status report.
func (d *Dispatcher) Journal() *journal.Journal {
	return d.journal
}

func (d *Dispatcher) mintChild(id fuseops.InodeID, name string, e inodemap.Entry) inode.Inode {
	h := objhash.Hash(e.Hash)
	if e.IsDir {
		return inode.NewTreeInode(id, name, h, d.objects, d.clock)
	}
	return inode.NewFileInode(id, name, h, filemode.Regular, d.objects, d.clock)
}

func (d *Dispatcher) allocHandle() fuseops.HandleID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHandle
	d.nextHandle++
	return id
}

func asTree(in inode.Inode) (*inode.TreeInode, error) {
	t, ok := in.(*inode.TreeInode)
	if !ok {
		return nil, scmerr.NotADirectory("inode is not a directory")
	}
	return t, nil
}

func asFile(in inode.Inode) (*inode.FileInode, error) {
	f, ok := in.(*inode.FileInode)
	if !ok {
		return nil, scmerr.IsADirectory("inode is a directory")
	}
	return f, nil
}

func direntKind(e inode.DirEntry) fuseutil.DirentType {
	if e.Mode == filemode.Dir {
		return fuseutil.DT_Directory
	}
	if e.Mode == filemode.Symlink {
		return fuseutil.DT_Link
	}
	return fuseutil.DT_File
}

func modeFromBits(m os.FileMode) filemode.FileMode {
	if m&0111 != 0 {
		return filemode.Executable
	}
	return filemode.Regular
}

////////////////////////////////////////////////////////////////////////
// Testable core: plain values in, plain values + error out
////////////////////////////////////////////////////////////////////////

func (d *Dispatcher) lookUpInode(ctx context.Context, parent fuseops.InodeID, name string) (fuseops.ChildInodeEntry, error) {
	parentIn, err := d.inodes.Get(parent)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	parentTree, err := asTree(parentIn)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	child, err := d.inodes.LookUpOrCreateChild(ctx, parent, name,
		func(ctx context.Context) (inodemap.Entry, error) {
			parentTree.Lock()
			entry, err := parentTree.LookUpChild(ctx, name)
			parentTree.Unlock()
			if err != nil {
				return inodemap.Entry{}, err
			}
			return inodemap.Entry{IsDir: entry.Mode == filemode.Dir, Hash: entry.Hash}, nil
		})
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	attrs, err := d.attributesOf(ctx, child)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	return fuseops.ChildInodeEntry{Child: child.ID(), Attributes: attrs}, nil
}

func (d *Dispatcher) attributesOf(ctx context.Context, in inode.Inode) (fuseops.InodeAttributes, error) {
	in.Lock()
	defer in.Unlock()
	return in.Attributes(ctx)
}

func (d *Dispatcher) getInodeAttributes(ctx context.Context, id fuseops.InodeID) (fuseops.InodeAttributes, error) {
	in, err := d.inodes.Get(id)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return d.attributesOf(ctx, in)
}

func (d *Dispatcher) setInodeAttributes(ctx context.Context, id fuseops.InodeID, size *uint64, mode *os.FileMode, mtime *uint64) (fuseops.InodeAttributes, error) {
	in, err := d.inodes.Get(id)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	in.Lock()
	defer in.Unlock()
	return in.SetAttributes(ctx, size, mode, mtime)
}

func (d *Dispatcher) forgetInode(id fuseops.InodeID, n uint64) error {
	return d.inodes.Unload(id, n)
}

func (d *Dispatcher) createChild(ctx context.Context, parent fuseops.InodeID, name string, mode filemode.FileMode, hash objhash.Hash) (fuseops.ChildInodeEntry, error) {
	parentIn, err := d.inodes.Get(parent)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	parentTree, err := asTree(parentIn)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	parentTree.Lock()
	if _, lookErr := parentTree.LookUpChild(ctx, name); lookErr == nil {
		parentTree.Unlock()
		return fuseops.ChildInodeEntry{}, scmerr.Exists(fmt.Sprintf("%q already exists", name))
	}
	if err := parentTree.AddChild(ctx, name, mode, hash); err != nil {
		parentTree.Unlock()
		return fuseops.ChildInodeEntry{}, err
	}
	parentTree.Unlock()

	child, err := d.inodes.LookUpOrCreateChild(ctx, parent, name,
		func(ctx context.Context) (inodemap.Entry, error) {
			return inodemap.Entry{IsDir: mode == filemode.Dir, Hash: hash}, nil
		})
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	attrs, err := d.attributesOf(ctx, child)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	d.journal.Append(journal.Delta{Kind: journal.KindCreated, ParentID: parent, Name: name, ChildID: child.ID()})
	return fuseops.ChildInodeEntry{Child: child.ID(), Attributes: attrs}, nil
}

func (d *Dispatcher) mkDir(ctx context.Context, parent fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, error) {
	return d.createChild(ctx, parent, name, filemode.Dir, objhash.Zero)
}

func (d *Dispatcher) createFile(ctx context.Context, parent fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, fuseops.HandleID, error) {
	entry, err := d.createChild(ctx, parent, name, modeFromBits(mode), objhash.Zero)
	if err != nil {
		return fuseops.ChildInodeEntry{}, 0, err
	}
	return entry, d.allocHandle(), nil
}

func (d *Dispatcher) createSymlink(ctx context.Context, parent fuseops.InodeID, name string, target string) (fuseops.ChildInodeEntry, error) {
	h, err := d.objects.PutBlob(&gitobj.Blob{Content: []byte(target)})
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	return d.createChild(ctx, parent, name, filemode.Symlink, h)
}

func (d *Dispatcher) removeChild(ctx context.Context, parent fuseops.InodeID, name string, wantDir bool) error {
	parentIn, err := d.inodes.Get(parent)
	if err != nil {
		return err
	}
	parentTree, err := asTree(parentIn)
	if err != nil {
		return err
	}

	// Resolve through the inode map rather than trusting the parent tree's
	// DirEntry.Hash, which goes stale the moment the child itself
	// materializes without the parent's entry being updated to match. The
	// resulting transient lookup-count bump is undone immediately below;
	// it never outlives this call.
	child, err := d.inodes.LookUpOrCreateChild(ctx, parent, name,
		func(ctx context.Context) (inodemap.Entry, error) {
			parentTree.Lock()
			entry, err := parentTree.LookUpChild(ctx, name)
			parentTree.Unlock()
			if err != nil {
				return inodemap.Entry{}, err
			}
			return inodemap.Entry{IsDir: entry.Mode == filemode.Dir, Hash: entry.Hash}, nil
		})
	if err != nil {
		return err
	}
	defer d.inodes.Unload(child.ID(), 1)

	tree, isDir := child.(*inode.TreeInode)
	if wantDir && !isDir {
		return scmerr.NotADirectory(fmt.Sprintf("%q is not a directory", name))
	}
	if !wantDir && isDir {
		return scmerr.IsADirectory(fmt.Sprintf("%q is a directory", name))
	}

	if wantDir {
		tree.Lock()
		empty, err := tree.IsEmpty(ctx)
		tree.Unlock()
		if err != nil {
			return err
		}
		if !empty {
			return scmerr.NotEmpty(fmt.Sprintf("%q is not empty", name))
		}
	}

	parentTree.Lock()
	err = parentTree.RemoveChild(ctx, name)
	parentTree.Unlock()
	if err != nil {
		return err
	}

	d.journal.Append(journal.Delta{Kind: journal.KindRemoved, ParentID: parent, Name: name})
	return nil
}

func (d *Dispatcher) openDir(ctx context.Context, id fuseops.InodeID) (fuseops.HandleID, error) {
	in, err := d.inodes.Get(id)
	if err != nil {
		return 0, err
	}
	tree, err := asTree(in)
	if err != nil {
		return 0, err
	}

	tree.Lock()
	entries, err := tree.ListChildren(ctx)
	tree.Unlock()
	if err != nil {
		return 0, err
	}

	handle := d.allocHandle()
	d.mu.Lock()
	d.dirHandles[handle] = &dirHandle{entries: entries}
	d.mu.Unlock()
	return handle, nil
}

func (d *Dispatcher) readDir(handle fuseops.HandleID, offset fuseops.DirOffset, size int) ([]byte, error) {
	d.mu.Lock()
	h, ok := d.dirHandles[handle]
	d.mu.Unlock()
	if !ok {
		return nil, scmerr.Internal("unknown directory handle", nil)
	}

	start := int(offset)
	if start > len(h.entries) {
		start = len(h.entries)
	}

	var data []byte
	for i := start; i < len(h.entries); i++ {
		e := h.entries[i]
		// Inode is left zero: the kernel always re-resolves a name via
		// LookUpInode rather than trusting d_ino from readdir.
		data = fuseutil.AppendDirent(data, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Name:   e.Name,
			Type:   direntKind(e),
		})
		if len(data) > size {
			data = data[:size]
			break
		}
	}
	return data, nil
}

func (d *Dispatcher) releaseDirHandle(handle fuseops.HandleID) {
	d.mu.Lock()
	delete(d.dirHandles, handle)
	d.mu.Unlock()
}

func (d *Dispatcher) openFile(id fuseops.InodeID) (fuseops.HandleID, error) {
	if _, err := d.inodes.Get(id); err != nil {
		return 0, err
	}
	return d.allocHandle(), nil
}

func (d *Dispatcher) readFile(ctx context.Context, id fuseops.InodeID, offset int64, size int) ([]byte, error) {
	in, err := d.inodes.Get(id)
	if err != nil {
		return nil, err
	}
	f, err := asFile(in)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	f.Lock()
	n, err := f.ReadAt(ctx, buf, offset)
	f.Unlock()
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *Dispatcher) writeFile(ctx context.Context, id fuseops.InodeID, offset int64, data []byte) error {
	in, err := d.inodes.Get(id)
	if err != nil {
		return err
	}
	f, err := asFile(in)
	if err != nil {
		return err
	}

	f.Lock()
	_, err = f.WriteAt(ctx, data, offset)
	f.Unlock()
	return err
}

func (d *Dispatcher) flushFile(id fuseops.InodeID) error {
	in, err := d.inodes.Get(id)
	if err != nil {
		return err
	}
	f, err := asFile(in)
	if err != nil {
		return err
	}

	f.Lock()
	_, err = f.Flush()
	f.Unlock()
	if err != nil {
		return err
	}
	d.journal.Append(journal.Delta{Kind: journal.KindModified, ChildID: id})
	return nil
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem: decode op, call testable core, respond
////////////////////////////////////////////////////////////////////////

func (d *Dispatcher) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (d *Dispatcher) LookUpInode(op *fuseops.LookUpInodeOp) {
	timer := management.StartOp("LookUpInode")
	entry, err := d.lookUpInode(context.Background(), op.Parent, op.Name)
	timer.Observe(err)
	op.Entry = entry
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	timer := management.StartOp("GetInodeAttributes")
	attrs, err := d.getInodeAttributes(context.Background(), op.Inode)
	timer.Observe(err)
	op.Attributes = attrs
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	timer := management.StartOp("SetInodeAttributes")
	var mtime *uint64
	if op.Mtime != nil {
		m := uint64(op.Mtime.UnixNano())
		mtime = &m
	}
	attrs, err := d.setInodeAttributes(context.Background(), op.Inode, op.Size, op.Mode, mtime)
	timer.Observe(err)
	op.Attributes = attrs
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) ForgetInode(op *fuseops.ForgetInodeOp) {
	timer := management.StartOp("ForgetInode")
	err := d.forgetInode(op.ID, 1)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) MkDir(op *fuseops.MkDirOp) {
	timer := management.StartOp("MkDir")
	entry, err := d.mkDir(context.Background(), op.Parent, op.Name, op.Mode)
	timer.Observe(err)
	op.Entry = entry
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) CreateFile(op *fuseops.CreateFileOp) {
	timer := management.StartOp("CreateFile")
	entry, handle, err := d.createFile(context.Background(), op.Parent, op.Name, op.Mode)
	timer.Observe(err)
	op.Entry = entry
	op.Handle = handle
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	timer := management.StartOp("CreateSymlink")
	entry, err := d.createSymlink(context.Background(), op.Parent, op.Name, op.Target)
	timer.Observe(err)
	op.Entry = entry
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) RmDir(op *fuseops.RmDirOp) {
	timer := management.StartOp("RmDir")
	err := d.removeChild(context.Background(), op.Parent, op.Name, true)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) Unlink(op *fuseops.UnlinkOp) {
	timer := management.StartOp("Unlink")
	err := d.removeChild(context.Background(), op.Parent, op.Name, false)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) OpenDir(op *fuseops.OpenDirOp) {
	timer := management.StartOp("OpenDir")
	handle, err := d.openDir(context.Background(), op.Inode)
	timer.Observe(err)
	op.Handle = handle
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) ReadDir(op *fuseops.ReadDirOp) {
	timer := management.StartOp("ReadDir")
	data, err := d.readDir(op.Handle, op.Offset, op.Size)
	timer.Observe(err)
	op.Data = data
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	d.releaseDirHandle(op.Handle)
	op.Respond(nil)
}

func (d *Dispatcher) OpenFile(op *fuseops.OpenFileOp) {
	timer := management.StartOp("OpenFile")
	handle, err := d.openFile(op.Inode)
	timer.Observe(err)
	op.Handle = handle
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) ReadFile(op *fuseops.ReadFileOp) {
	timer := management.StartOp("ReadFile")
	data, err := d.readFile(context.Background(), op.Inode, op.Offset, op.Size)
	timer.Observe(err)
	op.Data = data
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) WriteFile(op *fuseops.WriteFileOp) {
	timer := management.StartOp("WriteFile")
	err := d.writeFile(context.Background(), op.Inode, op.Offset, op.Data)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) SyncFile(op *fuseops.SyncFileOp) {
	timer := management.StartOp("SyncFile")
	err := d.flushFile(op.Inode)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) FlushFile(op *fuseops.FlushFileOp) {
	timer := management.StartOp("FlushFile")
	err := d.flushFile(op.Inode)
	timer.Observe(err)
	op.Respond(scmerr.ToErrno(err))
}

func (d *Dispatcher) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}

////////////////////////////////////////////////////////////////////////
// Extensions beyond fuseutil.FileSystem
//
// The jacobsa/fuse revision this module depends on does not expose
// Rename, xattr, or hardlink operations through fuseutil.FileSystem, so
// these are ordinary Dispatcher methods instead: fully implemented and
// directly testable, just not reachable through the kernel transport at
// this dependency revision. ReadSymlink is implemented as a direct method
// for the same reason, even though the underlying fuseops.ReadSymlinkOp
// type exists upstream.
////////////////////////////////////////////////////////////////////////

// Rename moves (oldParent, oldName) to (newParent, newName), locking both
// parent directories in canonical inode-number order to avoid deadlocking
// against a concurrent rename in the opposite direction.
func (d *Dispatcher) Rename(ctx context.Context, oldParent fuseops.InodeID, oldName string, newParent fuseops.InodeID, newName string) error {
	oldParentIn, err := d.inodes.Get(oldParent)
	if err != nil {
		return err
	}
	newParentIn, err := d.inodes.Get(newParent)
	if err != nil {
		return err
	}

	oldTree, err := asTree(oldParentIn)
	if err != nil {
		return err
	}
	newTree, err := asTree(newParentIn)
	if err != nil {
		return err
	}

	unlock := inodemap.LockInPairOrder(oldTree, newTree)
	defer unlock()

	entry, err := oldTree.LookUpChild(ctx, oldName)
	if err != nil {
		return err
	}

	if err := newTree.AddChild(ctx, newName, entry.Mode, entry.Hash); err != nil {
		return err
	}
	if err := oldTree.RemoveChild(ctx, oldName); err != nil {
		return err
	}

	// Preserve the existing inode object and number under its new name
	// rather than letting a subsequent lookup mint a fresh one for it.
	d.inodes.Rename(oldParent, oldName, newParent, newName)

	d.journal.Append(journal.Delta{
		Kind: journal.KindRenamed, ParentID: oldParent, Name: oldName,
		NewParent: newParent, NewName: newName,
	})
	return nil
}

// Mknod creates a new child of the given mode (a regular file or
// directory; device/fifo/socket nodes have no representation in this
// content-addressed tree and are rejected as unsupported).
func (d *Dispatcher) Mknod(ctx context.Context, parent fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, error) {
	if mode&os.ModeType != 0 && mode&os.ModeDir == 0 {
		return fuseops.ChildInodeEntry{}, scmerr.Unsupported("mknod only supports regular files and directories")
	}
	if mode&os.ModeDir != 0 {
		return d.createChild(ctx, parent, name, filemode.Dir, objhash.Zero)
	}
	return d.createChild(ctx, parent, name, modeFromBits(mode), objhash.Zero)
}

// Link creates a new name under newParent sharing oldID's current content
// hash. The tree/blob data model gives every inode exactly one parent, so
// this is a content-sharing approximation of a POSIX hardlink rather than a
// true shared-inode link: the new name gets its own inode number, flushed
// independently from the original. oldID is flushed first so the new entry
// always starts from its latest content.
func (d *Dispatcher) Link(ctx context.Context, oldID fuseops.InodeID, newParent fuseops.InodeID, newName string) (fuseops.ChildInodeEntry, error) {
	oldIn, err := d.inodes.Get(oldID)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	f, err := asFile(oldIn)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	f.Lock()
	h, err := f.Flush()
	mode := f.Mode()
	f.Unlock()
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}

	return d.createChild(ctx, newParent, newName, mode, h)
}

// sourceHashAttrName is the only extended attribute name this filesystem
// recognizes: the content hash the inode currently resolves to.
const sourceHashAttrName = "user.edenfs.sourcehash"

// Getxattr returns the value of the named attribute for id. Only
// sourceHashAttrName is defined; any other name is reported not-found,
// since the fixed error taxonomy has no dedicated "no such attribute" kind.
func (d *Dispatcher) Getxattr(ctx context.Context, id fuseops.InodeID, name string) ([]byte, error) {
	if name != sourceHashAttrName {
		return nil, scmerr.NotFound(fmt.Sprintf("no attribute named %q", name))
	}
	in, err := d.inodes.Get(id)
	if err != nil {
		return nil, err
	}
	in.Lock()
	hash := in.SourceHash()
	in.Unlock()
	return []byte(hash.String()), nil
}

// Listxattr returns the fixed set of attribute names defined on every
// inode.
func (d *Dispatcher) Listxattr(ctx context.Context, id fuseops.InodeID) ([]string, error) {
	if _, err := d.inodes.Get(id); err != nil {
		return nil, err
	}
	return []string{sourceHashAttrName}, nil
}

// RootSourceHash returns the source hash the mount's root currently
// resolves to, for the management interface's mount-points listing.
func (d *Dispatcher) RootSourceHash() objhash.Hash {
	in, err := d.inodes.Get(fuseops.RootInodeID)
	if err != nil {
		return objhash.Zero
	}
	in.Lock()
	defer in.Unlock()
	return in.SourceHash()
}

// ReadSymlink returns the target of the symlink at id.
func (d *Dispatcher) ReadSymlink(ctx context.Context, id fuseops.InodeID) (string, error) {
	in, err := d.inodes.Get(id)
	if err != nil {
		return "", err
	}
	f, err := asFile(in)
	if err != nil {
		return "", err
	}

	f.Lock()
	defer f.Unlock()
	if !f.IsSymlink() {
		return "", scmerr.InvalidArgument("inode is not a symlink")
	}
	return f.ReadLink(ctx)
}
