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
	"log"
)

// A helper struct for implementing lookup counts. destroy will be called when
// the count hits zero, with errors logged but otherwise ignored. canDestroy,
// if set, is consulted first and must return true before destroy runs;
// returning false leaves the inode live in its zero-count state so a later
// Dec (after e.g. a flush clears dirty state) can retry destruction.
// External synchronization is required.
type lookupCount struct {
	count      uint64
	destroy    func() error
	canDestroy func() bool
}

func (lc *lookupCount) Inc() {
	lc.count++
}

func (lc *lookupCount) Dec(n uint64) (destroyed bool) {
	// A forget count larger than what we've handed out indicates a bug in
	// the kernel/dispatcher bookkeeping, not a condition a caller can act
	// on. Log it as an internal error and clamp rather than panicking: a
	// crashed mount is worse than a lookup count that bottoms out at zero.
	if n > lc.count {
		log.Printf("lookup count underflow: asked to decrement by %d, only %d outstanding", n, lc.count)
		n = lc.count
	}

	// Decrement and destroy if necessary.
	lc.count -= n

	if lc.count == 0 {
		if lc.canDestroy != nil && !lc.canDestroy() {
			return false
		}

		err := lc.destroy()
		if err != nil {
			log.Printf("Error destroying: %v", err)
		}

		destroyed = true
	}

	return
}
