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
	"os"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/overlay"
	"github.com/edenfs-go/edenfs/scmerr"
	"github.com/jacobsa/fuse/fuseops"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
)

// FileInode is a regular file or symlink: while clean, its content is read
// straight out of the resolved Blob; once written to or truncated, it
// materializes into an overlay.Overlay, exactly mirroring the teacher's
// MutableContent clean-content/read-write-lease duality.
type FileInode struct {
	base

	objects *objectstore.Store
	mode    filemode.FileMode // Regular or Symlink
	ov      *overlay.MemOverlay
}

// NewFileInode constructs a clean file inode for id, minted from the blob at
// sourceHash.
func NewFileInode(id fuseops.InodeID, name string, sourceHash objhash.Hash, mode filemode.FileMode, objects *objectstore.Store, c clock.Clock) *FileInode {
	f := &FileInode{
		base:    newBase(id, name, sourceHash, c),
		objects: objects,
		mode:    mode,
	}
	f.lc.destroy = f.destroy
	f.lc.canDestroy = func() bool { return !f.dirty }
	return f
}

// Mode returns the inode's file mode (Regular, Executable, or Symlink).
func (f *FileInode) Mode() filemode.FileMode {
	return f.mode
}

func (f *FileInode) destroy() error {
	f.destroyed = true
	f.ov = nil
	return nil
}

// Destroy implements Inode.
func (f *FileInode) Destroy() error {
	return f.destroy()
}

// IsSymlink reports whether this file inode represents a symlink rather
// than a regular file.
func (f *FileInode) IsSymlink() bool {
	return f.mode == filemode.Symlink
}

func (f *FileInode) ensureMaterialized(ctx context.Context) error {
	f.checkNotDestroyed()
	if f.ov != nil {
		return nil
	}

	var content []byte
	if !f.sourceHash.IsZero() {
		blob, err := f.objects.Blob(ctx, f.sourceHash)
		if err != nil {
			return scmerr.Wrap(scmerr.KindIOError, "materializing file", err)
		}
		content = blob.Content
	}

	f.ov = overlay.NewFileOverlay(content)
	f.materialized = true
	return nil
}

// Size returns the current logical size, without forcing materialization
// when the inode is still clean.
func (f *FileInode) Size(ctx context.Context) (uint64, error) {
	f.checkNotDestroyed()
	if f.ov != nil {
		return uint64(f.ov.Size()), nil
	}
	if f.sourceHash.IsZero() {
		return 0, nil
	}
	blob, err := f.objects.Blob(ctx, f.sourceHash)
	if err != nil {
		return 0, scmerr.Wrap(scmerr.KindIOError, "statting file", err)
	}
	return uint64(len(blob.Content)), nil
}

// Attributes implements Inode.
func (f *FileInode) Attributes(ctx context.Context) (fuseops.InodeAttributes, error) {
	size, err := f.Size(ctx)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	mode := os.FileMode(0644)
	switch f.mode {
	case filemode.Symlink:
		mode = os.FileMode(0777) | os.ModeSymlink
	case filemode.Executable:
		mode = os.FileMode(0755)
	}
	return fuseops.InodeAttributes{
		Size:  size,
		Nlink: 1,
		Mode:  mode,
		Mtime: f.clock.Now(),
	}, nil
}

// SetAttributes implements Inode. A non-nil size materializes the file and
// truncates it to that size.
func (f *FileInode) SetAttributes(ctx context.Context, size *uint64, mode *os.FileMode, mtime *uint64) (fuseops.InodeAttributes, error) {
	if size != nil {
		if err := f.ensureMaterialized(ctx); err != nil {
			return fuseops.InodeAttributes{}, err
		}
		if err := f.ov.Truncate(int64(*size)); err != nil {
			return fuseops.InodeAttributes{}, scmerr.Wrap(scmerr.KindInvalidArgument, "truncate", err)
		}
		f.dirty = true
	}
	return f.Attributes(ctx)
}

// ReadAt serves a read, from the overlay if materialized or the resolved
// blob otherwise.
func (f *FileInode) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	f.checkNotDestroyed()
	if f.ov != nil {
		return f.ov.ReadAt(buf, offset)
	}
	if f.sourceHash.IsZero() {
		return 0, nil
	}
	blob, err := f.objects.Blob(ctx, f.sourceHash)
	if err != nil {
		return 0, scmerr.Wrap(scmerr.KindIOError, "reading file", err)
	}
	if offset >= int64(len(blob.Content)) {
		return 0, nil
	}
	return copy(buf, blob.Content[offset:]), nil
}

// WriteAt materializes the file (if needed) and writes into its overlay.
func (f *FileInode) WriteAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	if err := f.ensureMaterialized(ctx); err != nil {
		return 0, err
	}
	n, err := f.ov.WriteAt(buf, offset)
	if err == nil {
		f.dirty = true
	}
	return n, err
}

// ReadLink returns the symlink target, resolving through the same
// clean/materialized split as ReadAt.
func (f *FileInode) ReadLink(ctx context.Context) (string, error) {
	size, err := f.Size(ctx)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(ctx, buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Flush serializes this file's materialized content (if any) into a new
// Blob object, stores it, and returns its hash. Clean files return their
// existing sourceHash unchanged.
func (f *FileInode) Flush() (objhash.Hash, error) {
	f.checkNotDestroyed()
	if f.ov == nil {
		return f.sourceHash, nil
	}

	buf := make([]byte, f.ov.Size())
	f.ov.ReadAt(buf, 0)

	h, err := f.objects.PutBlob(&gitobj.Blob{Content: buf})
	if err != nil {
		return objhash.Zero, scmerr.Wrap(scmerr.KindIOError, "flushing file", err)
	}
	f.sourceHash = h
	f.dirty = false
	return h, nil
}
