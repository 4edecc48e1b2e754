package overlay_test

import (
	"testing"

	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOverlayCleanUntilWritten(t *testing.T) {
	o := overlay.NewFileOverlay([]byte("hello"))
	assert.False(t, o.Dirty())

	buf := make([]byte, 5)
	n, err := o.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	_, err = o.WriteAt([]byte("H"), 0)
	require.NoError(t, err)
	assert.True(t, o.Dirty())

	buf2 := make([]byte, 5)
	o.ReadAt(buf2, 0)
	assert.Equal(t, "Hello", string(buf2))
}

func TestFileOverlayWritePastEndGrows(t *testing.T) {
	o := overlay.NewFileOverlay([]byte("ab"))
	_, err := o.WriteAt([]byte("cd"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), o.Size())
}

func TestFileOverlayTruncate(t *testing.T) {
	o := overlay.NewFileOverlay([]byte("abcdef"))
	require.NoError(t, o.Truncate(3))
	assert.Equal(t, int64(3), o.Size())
	assert.True(t, o.Dirty())

	require.NoError(t, o.Truncate(5))
	buf := make([]byte, 5)
	o.ReadAt(buf, 0)
	assert.Equal(t, "abc\x00\x00", string(buf))
}

func TestDirOverlayChildren(t *testing.T) {
	o := overlay.NewDirOverlay(nil)
	assert.False(t, o.Dirty())

	o.SetChild(overlay.Child{Name: "b", Hash: objhash.Hash{1}})
	o.SetChild(overlay.Child{Name: "a", Hash: objhash.Hash{2}})
	assert.True(t, o.Dirty())

	children := o.ListChildren()
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name)
	assert.Equal(t, "b", children[1].Name)

	o.RemoveChild("a")
	assert.Len(t, o.ListChildren(), 1)
}

func TestFileOverlayPanicsOnDirMethods(t *testing.T) {
	o := overlay.NewFileOverlay(nil)
	assert.Panics(t, func() { o.ListChildren() })
}
