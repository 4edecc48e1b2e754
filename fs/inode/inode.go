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

// Package inode implements the Inode Operations layer: the capability set
// every live inode exposes to the Dispatcher, and the two concrete kinds
// (TreeInode, FileInode) that implement it atop either a clean object
// resolved from the Object Store Facade or a materialized overlay.
package inode

import (
	"context"
	"os"
	"sync"

	"github.com/edenfs-go/edenfs/objhash"
	"github.com/jacobsa/fuse/fuseops"
)

// Inode is the capability set every live inode exposes, regardless of
// whether it is backed by a clean object or has been materialized. The
// Dispatcher type-switches to TreeInode or FileInode for kind-specific
// operations; this interface covers what both kinds share.
type Inode interface {
	// All methods below require the lock to be held unless otherwise documented.
	sync.Locker

	// Return the ID assigned to the inode.
	//
	// Does not require the lock to be held.
	ID() fuseops.InodeID

	// Return the name this inode was last known by, for diagnostics and the
	// journal. This is not authoritative for path resolution: the Inode Map
	// is.
	//
	// Does not require the lock to be held.
	Name() string

	// Increment the lookup count for the inode. For use in fuse operations
	// where the kernel expects us to remember the inode.
	IncrementLookupCount()

	// Decrement the lookup count for the inode by the given amount. If this
	// method returns true, the lookup count has hit zero and the inode has
	// been destroyed. The inode must not be used further.
	DecrementLookupCount(n uint64) (destroyed bool)

	// Return up to date attributes for this inode.
	Attributes(ctx context.Context) (fuseops.InodeAttributes, error)

	// SetAttributes applies a size change, returning the resulting
	// attributes. A size change materializes a file and truncates it, and is
	// an invalid argument on a directory. Mode and mtime are accepted but not
	// applied by either inode kind.
	SetAttributes(
		ctx context.Context,
		size *uint64,
		mode *os.FileMode,
		mtime *uint64) (fuseops.InodeAttributes, error)

	// Destroy puts the inode into an indeterminate state. Called once the
	// lookup count has hit zero; the inode must not be used again.
	Destroy() error

	// SourceHash returns the clean object this inode was minted from.
	SourceHash() objhash.Hash

	// Dirty reports whether this inode holds overlay content not yet
	// flushed to the object store. An inode for which Dirty returns true
	// must not be unloaded: doing so would lose the unflushed writes.
	Dirty() bool
}
