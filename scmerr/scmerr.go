// Package scmerr implements the error taxonomy every component reports
// through, and the single table the Dispatcher uses to turn any of them
// into the fixed kernel errno the fuse protocol expects.
//
// This generalizes the teacher's one-off *gcs.PreconditionError -> EEXIST
// special-casing (seen throughout fs/fs.go's MkDir/CreateFile/CreateSymlink)
// into a single typed Kind plus one lookup table, so every new error site
// gets a correct errno for free instead of needing its own type switch.
package scmerr

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/jacobsa/fuse"
)

// Kind is the fixed set of error categories every component reports.
type Kind int

const (
	KindNotFound Kind = iota
	KindExists
	KindNotADirectory
	KindIsADirectory
	KindNotEmpty
	KindInvalidArgument
	KindPermissionDenied
	KindIOError
	KindStaleInode
	KindUnsupported
	KindParseError
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindExists:
		return "exists"
	case KindNotADirectory:
		return "not-a-directory"
	case KindIsADirectory:
		return "is-a-directory"
	case KindNotEmpty:
		return "not-empty"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindPermissionDenied:
		return "permission-denied"
	case KindIOError:
		return "io-error"
	case KindStaleInode:
		return "stale-inode"
	case KindUnsupported:
		return "unsupported"
	case KindParseError:
		return "parse-error"
	default:
		return "internal"
	}
}

// Error is a typed error carrying a Kind and, usually, an underlying cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with no underlying cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error carrying cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// NotFound, Exists, ... are convenience constructors for the common cases,
// mirroring the shape of the table below one-to-one.
func NotFound(msg string) error         { return New(KindNotFound, msg) }
func Exists(msg string) error           { return New(KindExists, msg) }
func NotADirectory(msg string) error    { return New(KindNotADirectory, msg) }
func IsADirectory(msg string) error     { return New(KindIsADirectory, msg) }
func NotEmpty(msg string) error         { return New(KindNotEmpty, msg) }
func InvalidArgument(msg string) error  { return New(KindInvalidArgument, msg) }
func PermissionDenied(msg string) error { return New(KindPermissionDenied, msg) }
func StaleInode(msg string) error       { return New(KindStaleInode, msg) }
func Unsupported(msg string) error      { return New(KindUnsupported, msg) }
func ParseError(msg string, cause error) error {
	return Wrap(KindParseError, msg, cause)
}
func Internal(msg string, cause error) error {
	return Wrap(KindInternal, msg, cause)
}

// ToErrno maps any error through the fixed Kind -> errno table. Errors that
// are not *Error (e.g. a raw I/O failure from the local store) map to
// KindIOError, matching the propagation policy: store absences surface as
// NotFound by the component that detected them, not here; anything
// unrecognized is assumed to be a lower-level I/O failure.
//
// The four codes the jacobsa/fuse package predefines (EIO, ENOENT, ENOSYS,
// ENOTEMPTY) are returned as-is; the remainder are constructed directly from
// syscall, since fuse's FileSystem.Respond accepts any error whose
// underlying type is a syscall.Errno.
func ToErrno(err error) error {
	if err == nil {
		return nil
	}

	var se *Error
	if !errors.As(err, &se) {
		return fuse.EIO
	}

	switch se.Kind {
	case KindNotFound:
		return fuse.ENOENT
	case KindExists:
		return syscall.EEXIST
	case KindNotADirectory:
		return syscall.ENOTDIR
	case KindIsADirectory:
		return syscall.EISDIR
	case KindNotEmpty:
		return fuse.ENOTEMPTY
	case KindInvalidArgument:
		return syscall.EINVAL
	case KindPermissionDenied:
		return syscall.EPERM
	case KindStaleInode:
		return syscall.ESTALE
	case KindUnsupported:
		return fuse.ENOSYS
	case KindIOError, KindParseError, KindInternal:
		return fuse.EIO
	default:
		return fuse.EIO
	}
}
