package scmerr_test

import (
	"errors"
	"testing"

	"github.com/edenfs-go/edenfs/scmerr"
	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"
)

func TestToErrnoMapsKnownKinds(t *testing.T) {
	assert.Equal(t, fuse.ENOENT, scmerr.ToErrno(scmerr.NotFound("x")))
	assert.Equal(t, fuse.ENOTEMPTY, scmerr.ToErrno(scmerr.NotEmpty("x")))
	assert.Equal(t, fuse.ENOSYS, scmerr.ToErrno(scmerr.Unsupported("x")))
}

func TestToErrnoNilIsNil(t *testing.T) {
	assert.Nil(t, scmerr.ToErrno(nil))
}

func TestToErrnoUnknownErrorIsIO(t *testing.T) {
	assert.Equal(t, fuse.EIO, scmerr.ToErrno(errors.New("boom")))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := scmerr.Wrap(scmerr.KindInternal, "msg", cause)
	assert.ErrorIs(t, err, cause)
}
