// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"fmt"

	"github.com/edenfs-go/edenfs/gitobj"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc <store-dir> <root-hash>",
	Short: "Remove objects unreachable from root-hash",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkConfig(); err != nil {
			return err
		}
		return runGC(args[0], args[1])
	},
}

func runGC(storeDir, rootHashStr string) error {
	root, err := objhash.Parse(rootHashStr)
	if err != nil {
		return fmt.Errorf("parse root hash: %w", err)
	}

	s, err := store.Open(storeDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	live, err := reachable(s, root)
	if err != nil {
		return fmt.Errorf("walk live objects: %w", err)
	}

	removedTrees, removedBlobs := 0, 0

	err = s.ForEachTree(func(h objhash.Hash, framed []byte) error {
		if live[h] {
			return nil
		}
		if err := s.DeleteTree(h); err != nil {
			return err
		}
		removedTrees++
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep trees: %w", err)
	}

	err = s.ForEachBlob(func(h objhash.Hash, framed []byte) error {
		if live[h] {
			return nil
		}
		if err := s.DeleteBlob(h); err != nil {
			return err
		}
		removedBlobs++
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep blobs: %w", err)
	}

	if err := s.CompactStorage(); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	fmt.Printf("gc: removed %d tree(s) and %d blob(s)\n", removedTrees, removedBlobs)
	return nil
}

// reachable walks the tree rooted at root and returns the set of every
// hash (tree or blob) it transitively points at, root included.
func reachable(s *store.Store, root objhash.Hash) (map[objhash.Hash]bool, error) {
	seen := map[objhash.Hash]bool{}
	if root.IsZero() {
		return seen, nil
	}

	var walk func(h objhash.Hash) error
	walk = func(h objhash.Hash) error {
		if seen[h] {
			return nil
		}
		seen[h] = true

		framed, ok, err := s.GetTree(h)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		tree, err := gitobj.DecodeTree(framed)
		if err != nil {
			return fmt.Errorf("decode tree %s: %w", h, err)
		}
		for _, e := range tree.Entries {
			if e.Kind() == gitobj.KindTree {
				if err := walk(e.Hash); err != nil {
					return err
				}
			} else {
				seen[e.Hash] = true
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return seen, nil
}
