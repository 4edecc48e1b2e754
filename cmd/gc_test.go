package cmd

import (
	"path/filepath"
	"testing"

	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "local.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putTestBlob(t *testing.T, s *store.Store, content string) objhash.Hash {
	t.Helper()
	b := &gitobj.Blob{Content: []byte(content)}
	h := b.Hash()
	require.NoError(t, s.PutBlob(h, b.Encode()))
	return h
}

func putTestTree(t *testing.T, s *store.Store, entries ...gitobj.Entry) objhash.Hash {
	t.Helper()
	tr := &gitobj.Tree{Entries: entries}
	h := tr.Hash()
	require.NoError(t, s.PutTree(h, tr.Encode()))
	return h
}

func TestReachableWalksTreeAndMarksBlobsLive(t *testing.T) {
	s := openTestStore(t)

	blobHash := putTestBlob(t, s, "hello")
	leafHash := putTestTree(t, s, gitobj.Entry{Name: "file.txt", Mode: filemode.Regular, Hash: blobHash})
	rootHash := putTestTree(t, s, gitobj.Entry{Name: "dir", Mode: filemode.Dir, Hash: leafHash})

	live, err := reachable(s, rootHash)
	require.NoError(t, err)
	require.True(t, live[rootHash])
	require.True(t, live[leafHash])
	require.True(t, live[blobHash])
}

func TestReachableFromZeroRootIsEmpty(t *testing.T) {
	s := openTestStore(t)
	live, err := reachable(s, objhash.Zero)
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestRunGCRemovesUnreachableObjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.bolt")
	s, err := store.Open(path)
	require.NoError(t, err)

	liveBlobHash := putTestBlob(t, s, "live")
	rootHash := putTestTree(t, s, gitobj.Entry{Name: "f", Mode: filemode.Regular, Hash: liveBlobHash})
	danglingHash := putTestBlob(t, s, "dangling")
	require.NoError(t, s.Close())

	require.NoError(t, runGC(path, rootHash.String()))

	s2, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	_, ok, err := s2.GetBlob(danglingHash)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s2.GetBlob(liveBlobHash)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s2.GetTree(rootHash)
	require.NoError(t, err)
	require.True(t, ok)
}
