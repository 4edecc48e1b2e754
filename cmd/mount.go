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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"

	"github.com/edenfs-go/edenfs/clock"
	"github.com/edenfs-go/edenfs/fs"
	edenlog "github.com/edenfs-go/edenfs/log"
	"github.com/edenfs-go/edenfs/management"
	"github.com/edenfs-go/edenfs/objectstore"
	"github.com/edenfs-go/edenfs/objhash"
	"github.com/edenfs-go/edenfs/store"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/spf13/cobra"
)

var mountLogger = edenlog.New("cmd")

var mountCmd = &cobra.Command{
	Use:   "mount <store-dir> <mountpoint>",
	Short: "Mount a local object store at mountpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkConfig(); err != nil {
			return err
		}
		return runMount(args[0], args[1])
	},
}

// mountHandler adapts a running Dispatcher into management.Handler so the
// management endpoint can report on it and ask it to unmount.
type mountHandler struct {
	dispatcher *fs.Dispatcher
	mountPoint string
	storeDir   string

	mu        sync.Mutex
	honorStop bool
	status    string
}

func newMountHandler(dispatcher *fs.Dispatcher, mountPoint, storeDir string) *mountHandler {
	return &mountHandler{
		dispatcher: dispatcher,
		mountPoint: mountPoint,
		storeDir:   storeDir,
		honorStop:  true,
		status:     "starting",
	}
}

func (h *mountHandler) markAlive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = "alive"
}

func (h *mountHandler) Status() management.Status {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()

	return management.Status{
		MountPoint: h.mountPoint,
		StoreDir:   h.storeDir,
		JournalSeq: h.dispatcher.Journal().NextSeq(),
		Status:     status,
		MountPoints: []management.MountPoint{
			{
				InodeNumber: uint64(fuseops.RootInodeID),
				Path:        h.mountPoint,
				SourceHash:  h.dispatcher.RootSourceHash().String(),
			},
		},
	}
}

func (h *mountHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	honorStop := h.honorStop
	h.mu.Unlock()
	if !honorStop {
		return fmt.Errorf("shutdown refused: honor_stop is disabled for %s", h.mountPoint)
	}
	return fuse.Unmount(h.mountPoint)
}

// SetOption applies one of the core-recognized mount options: honor_stop
// (bool, whether Shutdown requests are honored) or status (one of starting,
// alive, stopping).
func (h *mountHandler) SetOption(name, value string) error {
	switch name {
	case "honor_stop":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("honor_stop: %w", err)
		}
		h.mu.Lock()
		h.honorStop = v
		h.mu.Unlock()
		return nil
	case "status":
		switch value {
		case "starting", "alive", "stopping":
			h.mu.Lock()
			h.status = value
			h.mu.Unlock()
			return nil
		default:
			return fmt.Errorf("status: unrecognized value %q", value)
		}
	default:
		return fmt.Errorf("unrecognized option %q", name)
	}
}

func runMount(storeDir, mountPoint string) error {
	s, err := store.Open(storeDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	objects := objectstore.New(s, objectstore.NoBackingImporter{})

	dispatcher := fs.New(fs.Config{
		Objects:         objects,
		RootHash:        objhash.Zero,
		JournalCapacity: MountConfig.Journal.Capacity,
		Clock:           clock.RealClock{},
	})

	server := fs.NewServer(dispatcher)

	mfs, err := fuse.Mount(mountPoint, server, &fuse.MountConfig{})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	handler := newMountHandler(dispatcher, mountPoint, storeDir)
	handler.markAlive()

	if addr := MountConfig.Management.ListenAddress; addr != "" {
		mgmt := management.NewServer(handler)
		go func() {
			if err := mgmt.Serve(addr); err != nil {
				mountLogger.Printf("management server exited: %v", err)
			}
		}()
	}

	registerSIGINTHandler(mfs.Dir())

	return mfs.Join(context.Background())
}

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for {
			<-signalChan
			mountLogger.Printf("received SIGINT, attempting to unmount %s", mountPoint)

			if err := fuse.Unmount(mountPoint); err != nil {
				mountLogger.Printf("failed to unmount in response to SIGINT: %v", err)
			} else {
				mountLogger.Printf("successfully unmounted %s in response to SIGINT", mountPoint)
				return
			}
		}
	}()
}
