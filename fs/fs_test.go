package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/require"
)

// This file exercises the Dispatcher's testable core methods directly
// (mkDir, createFile, lookUpInode, ...) rather than constructing
// fuseops.*Op values: those ops only work through the real kernel
// connection that populates their internal Respond plumbing, so the op
// handler methods (MkDir, LookUpInode, ...) are exercised only as thin,
// untested shells around this core.

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "local.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	objects := objectstore.New(s, objectstore.NoBackingImporter{})
	return New(Config{
		Objects:         objects,
		RootHash:        objhash.Zero,
		JournalCapacity: 64,
		Clock:           clock.RealClock{},
	})
}

func TestMkDirThenLookUpInode(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, err := d.mkDir(ctx, fuseops.RootInodeID, "sub", 0755)
	require.NoError(t, err)
	require.NotZero(t, entry.Child)

	look, err := d.lookUpInode(ctx, fuseops.RootInodeID, "sub")
	require.NoError(t, err)
	require.Equal(t, entry.Child, look.Child)
}

func TestCreateFileWriteFlushAndReadBack(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, _, err := d.createFile(ctx, fuseops.RootInodeID, "a.txt", 0644)
	require.NoError(t, err)
	childID := entry.Child

	require.NoError(t, d.writeFile(ctx, childID, 0, []byte("hello")))
	require.NoError(t, d.flushFile(childID))

	data, err := d.readFile(ctx, childID, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestMkDirOnExistingNameFails(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	_, err := d.mkDir(ctx, fuseops.RootInodeID, "dup", 0755)
	require.NoError(t, err)

	_, err = d.mkDir(ctx, fuseops.RootInodeID, "dup", 0755)
	require.Error(t, err)
}

func TestUnlinkRemovesChild(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	_, _, err := d.createFile(ctx, fuseops.RootInodeID, "gone.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, d.removeChild(ctx, fuseops.RootInodeID, "gone.txt", false))

	_, err = d.lookUpInode(ctx, fuseops.RootInodeID, "gone.txt")
	require.Error(t, err)
}

func TestRmDirRejectsNonEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	dirEntry, err := d.mkDir(ctx, fuseops.RootInodeID, "full", 0755)
	require.NoError(t, err)

	_, _, err = d.createFile(ctx, dirEntry.Child, "child.txt", 0644)
	require.NoError(t, err)

	err = d.removeChild(ctx, fuseops.RootInodeID, "full", true)
	require.Error(t, err)
}

func TestRenameMovesChildBetweenDirectories(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	dirA, err := d.mkDir(ctx, fuseops.RootInodeID, "a", 0755)
	require.NoError(t, err)
	dirB, err := d.mkDir(ctx, fuseops.RootInodeID, "b", 0755)
	require.NoError(t, err)

	created, _, err := d.createFile(ctx, dirA.Child, "f.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, d.Rename(ctx, dirA.Child, "f.txt", dirB.Child, "f.txt"))

	_, err = d.lookUpInode(ctx, dirA.Child, "f.txt")
	require.Error(t, err)

	moved, err := d.lookUpInode(ctx, dirB.Child, "f.txt")
	require.NoError(t, err)
	require.NotZero(t, moved.Child)
	require.Equal(t, created.Child, moved.Child, "rename within a mount must preserve the inode number")
}

func TestOpenDirReadDirListsChildren(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	_, _, err := d.createFile(ctx, fuseops.RootInodeID, "listed.txt", 0644)
	require.NoError(t, err)

	handle, err := d.openDir(ctx, fuseops.RootInodeID)
	require.NoError(t, err)
	defer d.releaseDirHandle(handle)

	data, err := d.readDir(handle, 0, 4096)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestCreateSymlinkThenReadSymlink(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, err := d.createSymlink(ctx, fuseops.RootInodeID, "link", "target.txt")
	require.NoError(t, err)

	target, err := d.ReadSymlink(ctx, entry.Child)
	require.NoError(t, err)
	require.Equal(t, "target.txt", target)
}

func TestForgetInodeDestroysAtZeroLookupCount(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, err := d.mkDir(ctx, fuseops.RootInodeID, "tmp", 0755)
	require.NoError(t, err)

	// mkDir -> LookUpOrCreateChild mints the inode with a lookup
	// count of one; ForgetInode with n=1 should drop it to zero.
	require.NoError(t, d.forgetInode(entry.Child, 1))

	_, err = d.inodes.Get(entry.Child)
	require.Error(t, err)
}

func TestForgetInodeKeepsDirtyUnflushedFile(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, _, err := d.createFile(ctx, fuseops.RootInodeID, "dirty.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, d.writeFile(ctx, entry.Child, 0, []byte("unflushed")))

	// The kernel's forget drops this to zero outstanding lookups, but the
	// write was never flushed: the inode must survive.
	require.NoError(t, d.forgetInode(entry.Child, 1))

	_, err = d.inodes.Get(entry.Child)
	require.NoError(t, err, "a dirty inode must not be destroyed by forget")

	data, err := d.readFile(ctx, entry.Child, 0, 9)
	require.NoError(t, err)
	require.Equal(t, "unflushed", string(data))

	require.NoError(t, d.flushFile(entry.Child))

	// Now that it's flushed (clean), a retried unload actually destroys it.
	require.NoError(t, d.inodes.Unload(entry.Child, 0))
	_, err = d.inodes.Get(entry.Child)
	require.Error(t, err)
}

func TestMknodCreatesRegularFile(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, err := d.Mknod(ctx, fuseops.RootInodeID, "node.txt", 0644)
	require.NoError(t, err)
	require.NotZero(t, entry.Child)

	look, err := d.lookUpInode(ctx, fuseops.RootInodeID, "node.txt")
	require.NoError(t, err)
	require.Equal(t, entry.Child, look.Child)
}

func TestMknodRejectsDeviceNode(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	_, err := d.Mknod(ctx, fuseops.RootInodeID, "dev0", os.ModeDevice)
	require.Error(t, err)
}

func TestLinkSharesContentUnderNewName(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	orig, _, err := d.createFile(ctx, fuseops.RootInodeID, "orig.txt", 0644)
	require.NoError(t, err)
	require.NoError(t, d.writeFile(ctx, orig.Child, 0, []byte("shared")))

	linked, err := d.Link(ctx, orig.Child, fuseops.RootInodeID, "linked.txt")
	require.NoError(t, err)
	require.NotEqual(t, orig.Child, linked.Child, "this data model mints a distinct inode for the new name")

	data, err := d.readFile(ctx, linked.Child, 0, 6)
	require.NoError(t, err)
	require.Equal(t, "shared", string(data))
}

func TestGetxattrReturnsSourceHashAndRejectsUnknownName(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, _, err := d.createFile(ctx, fuseops.RootInodeID, "x.txt", 0644)
	require.NoError(t, err)

	val, err := d.Getxattr(ctx, entry.Child, sourceHashAttrName)
	require.NoError(t, err)
	require.Equal(t, objhash.Zero.String(), string(val))

	_, err = d.Getxattr(ctx, entry.Child, "user.unknown")
	require.Error(t, err)
}

func TestListxattrReturnsFixedAttributeSet(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t)

	entry, _, err := d.createFile(ctx, fuseops.RootInodeID, "x.txt", 0644)
	require.NoError(t, err)

	names, err := d.Listxattr(ctx, entry.Child)
	require.NoError(t, err)
	require.Equal(t, []string{sourceHashAttrName}, names)
}
