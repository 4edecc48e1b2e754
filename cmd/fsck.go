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

var fsckCmd = &cobra.Command{
	Use:   "fsck <store-dir>",
	Short: "Verify that every stored object's content hashes to its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkConfig(); err != nil {
			return err
		}
		return runFsck(args[0])
	},
}

func runFsck(storeDir string) error {
	s, err := store.Open(storeDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	bad := 0

	err = s.ForEachTree(func(h objhash.Hash, framed []byte) error {
		tree, err := gitobj.DecodeTree(framed)
		if err != nil {
			bad++
			fmt.Printf("tree %s: malformed: %v\n", h, err)
			return nil
		}
		if got := tree.Hash(); got.Compare(h) != 0 {
			bad++
			fmt.Printf("tree %s: stored under wrong key (hashes to %s)\n", h, got)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk trees: %w", err)
	}

	err = s.ForEachBlob(func(h objhash.Hash, framed []byte) error {
		blob, err := gitobj.DecodeBlob(framed)
		if err != nil {
			bad++
			fmt.Printf("blob %s: malformed: %v\n", h, err)
			return nil
		}
		if got := blob.Hash(); got.Compare(h) != 0 {
			bad++
			fmt.Printf("blob %s: stored under wrong key (hashes to %s)\n", h, got)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk blobs: %w", err)
	}

	if bad > 0 {
		return fmt.Errorf("fsck: found %d corrupt object(s)", bad)
	}
	fmt.Println("fsck: all objects verified")
	return nil
}
