package inode_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/fs/inode"
	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

func newTestObjects(t *testing.T) *objectstore.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "local.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return objectstore.New(s, objectstore.NoBackingImporter{})
}

func TestCleanFileServesFromBlob(t *testing.T) {
	objects := newTestObjects(t)
	h, err := objects.PutBlob(&gitobj.Blob{Content: []byte("hello")})
	require.NoError(t, err)

	f := inode.NewFileInode(fuseops.InodeID(2), "greeting.txt", h, filemode.Regular, objects, clock.RealClock{})
	require.False(t, f.Materialized())

	buf := make([]byte, 5)
	n, err := f.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.False(t, f.Materialized())
}

func TestWriteMaterializesFile(t *testing.T) {
	objects := newTestObjects(t)
	h, err := objects.PutBlob(&gitobj.Blob{Content: []byte("hello")})
	require.NoError(t, err)

	f := inode.NewFileInode(fuseops.InodeID(2), "greeting.txt", h, filemode.Regular, objects, clock.RealClock{})
	require.False(t, f.Dirty())
	_, err = f.WriteAt(context.Background(), []byte("H"), 0)
	require.NoError(t, err)
	require.True(t, f.Materialized())
	require.True(t, f.Dirty())

	newHash, err := f.Flush()
	require.NoError(t, err)
	require.NotEqual(t, h, newHash)
	require.False(t, f.Dirty())

	blob, err := objects.Blob(context.Background(), newHash)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(blob.Content))
}

func TestTreeListChildrenFromSourceTree(t *testing.T) {
	objects := newTestObjects(t)
	blobHash, err := objects.PutBlob(&gitobj.Blob{Content: []byte("x")})
	require.NoError(t, err)

	tree := &gitobj.Tree{Entries: []gitobj.Entry{
		{Name: "a.txt", Mode: filemode.Regular, Hash: blobHash},
	}}
	treeHash, err := objects.PutTree(tree)
	require.NoError(t, err)

	d := inode.NewRootTreeInode(objects, treeHash, clock.RealClock{})
	children, err := d.ListChildren(context.Background())
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "a.txt", children[0].Name)
}

func TestTreeAddChildMaterializes(t *testing.T) {
	objects := newTestObjects(t)
	d := inode.NewRootTreeInode(objects, objhash.Zero, clock.RealClock{})

	empty, err := d.IsEmpty(context.Background())
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, d.AddChild(context.Background(), "new.txt", filemode.Regular, objhash.Hash{0x01}))
	require.True(t, d.Materialized())

	entry, err := d.LookUpChild(context.Background(), "new.txt")
	require.NoError(t, err)
	require.Equal(t, objhash.Hash{0x01}, entry.Hash)

	h, err := d.Flush()
	require.NoError(t, err)
	require.False(t, h.IsZero())
}

func TestLookupCountDestroysAtZero(t *testing.T) {
	objects := newTestObjects(t)
	f := inode.NewFileInode(fuseops.InodeID(5), "f", objhash.Zero, filemode.Regular, objects, clock.RealClock{})
	f.IncrementLookupCount()
	f.IncrementLookupCount()

	require.False(t, f.DecrementLookupCount(1))
	require.True(t, f.DecrementLookupCount(1))
}

func TestDirtyFileSurvivesLookupCountReachingZero(t *testing.T) {
	objects := newTestObjects(t)
	f := inode.NewFileInode(fuseops.InodeID(6), "dirty.txt", objhash.Zero, filemode.Regular, objects, clock.RealClock{})
	f.IncrementLookupCount()

	_, err := f.WriteAt(context.Background(), []byte("unflushed"), 0)
	require.NoError(t, err)
	require.True(t, f.Dirty())

	require.False(t, f.DecrementLookupCount(1), "a dirty inode must not be destroyed on forget")

	buf := make([]byte, 9)
	n, err := f.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	require.Equal(t, "unflushed", string(buf[:n]), "overlay content must survive the forget")

	_, err = f.Flush()
	require.NoError(t, err)
	require.False(t, f.Dirty())

	require.True(t, f.DecrementLookupCount(0), "a flushed, no-longer-dirty inode may now be destroyed")
}

func TestDirtyDirectorySurvivesLookupCountReachingZero(t *testing.T) {
	objects := newTestObjects(t)
	d := inode.NewRootTreeInode(objects, objhash.Zero, clock.RealClock{})
	d.IncrementLookupCount()

	require.NoError(t, d.AddChild(context.Background(), "new.txt", filemode.Regular, objhash.Hash{0x01}))
	require.True(t, d.Dirty())

	require.False(t, d.DecrementLookupCount(1), "a dirty directory must not be destroyed on forget")

	entry, err := d.LookUpChild(context.Background(), "new.txt")
	require.NoError(t, err)
	require.Equal(t, objhash.Hash{0x01}, entry.Hash)

	_, err = d.Flush()
	require.NoError(t, err)
	require.False(t, d.Dirty())

	require.True(t, d.DecrementLookupCount(0))
}
