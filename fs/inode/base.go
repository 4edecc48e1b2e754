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
	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// base holds the state and bookkeeping every inode kind shares: identity,
// lookup count, and the clean-vs-materialized discriminant. TreeInode and
// FileInode embed it and add kind-specific content.
type base struct {
	// Dependencies, fixed for the inode's lifetime.
	clock clock.Clock

	// Mu guards everything below. Lock ordering, per the Dispatcher's
	// documented discipline: for any inode lock I, I < Dispatcher's
	// structural lock; for two inode locks being acquired together (e.g.
	// during rename), the lower inode number is always locked first.
	mu syncutil.InvariantMutex

	id   fuseops.InodeID
	name string
	lc   lookupCount

	// sourceHash is the hash of the clean object this inode was minted
	// from. It remains set even after materialization, recording where the
	// inode's content diverged from.
	sourceHash objhash.Hash

	// materialized is true once anything has written to this inode's
	// overlay. A materialized inode never again consults the Object Store
	// Facade for its own content; only its still-clean descendants do.
	materialized bool

	// dirty is true when the overlay holds content not yet reflected in
	// sourceHash. Unlike materialized, dirty clears on a successful Flush
	// and can be set again by a later write, so it tracks "would a forget
	// right now lose data" rather than "has this inode ever been written".
	dirty bool

	destroyed bool
}

func newBase(id fuseops.InodeID, name string, sourceHash objhash.Hash, c clock.Clock) base {
	b := base{
		clock:      c,
		id:         id,
		name:       name,
		sourceHash: sourceHash,
	}
	return b
}

func (b *base) Lock()   { b.mu.Lock() }
func (b *base) Unlock() { b.mu.Unlock() }

func (b *base) ID() fuseops.InodeID { return b.id }
func (b *base) Name() string        { return b.name }

func (b *base) IncrementLookupCount() {
	b.lc.Inc()
}

// DecrementLookupCount decrements by n, invoking the destroy callback wired
// up by the owning TreeInode/FileInode constructor if the count hits zero
// and the inode is not dirty.
func (b *base) DecrementLookupCount(n uint64) (destroyed bool) {
	return b.lc.Dec(n)
}

// SourceHash returns the clean object this inode was minted from, which
// remains meaningful even after materialization for diagnostics and for
// the journal's rename/move bookkeeping.
func (b *base) SourceHash() objhash.Hash {
	return b.sourceHash
}

// Materialized reports whether this inode's content has diverged from its
// source object.
func (b *base) Materialized() bool {
	return b.materialized
}

// Dirty reports whether this inode holds overlay state not yet flushed to
// the object store. An inode with Dirty() true must not be unloaded.
func (b *base) Dirty() bool {
	return b.dirty
}

func (b *base) checkNotDestroyed() {
	if b.destroyed {
		panic("use of destroyed inode")
	}
}
