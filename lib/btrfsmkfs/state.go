// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"fmt"
)

// State tracks how far a formatting operation has progressed.  States
// only ever advance, except that any state may transition to
// StateAborted.
type State int

const (
	StateUninitialized = State(iota)
	StateDevicesPrepared
	StateSuperblockWritten
	StateTreesBootstrapped
	StateMetadataGroupsCreated
	StateOptionalRootsReady
	StateDataGroupsAndRootDirCreated
	StateDevicesAttached
	StateRAIDGroupsCreated
	StateRecowed
	StateRelocOrRemapReady
	StateUUIDIndexRebuilt
	StateTempChunksCleaned
	StateFinalized

	StateAborted = State(-1)
)

var stateNames = map[State]string{
	StateUninitialized:               "UNINITIALIZED",
	StateDevicesPrepared:             "DEVICES_PREPARED",
	StateSuperblockWritten:           "SUPERBLOCK_WRITTEN",
	StateTreesBootstrapped:           "TREES_BOOTSTRAPPED",
	StateMetadataGroupsCreated:       "METADATA_GROUPS_CREATED",
	StateOptionalRootsReady:          "OPTIONAL_ROOTS_READY",
	StateDataGroupsAndRootDirCreated: "DATA_GROUPS_AND_ROOTDIR_CREATED",
	StateDevicesAttached:             "DEVICES_ATTACHED",
	StateRAIDGroupsCreated:           "RAID_GROUPS_CREATED",
	StateRecowed:                     "RECOWED",
	StateRelocOrRemapReady:           "RELOC_OR_REMAP_READY",
	StateUUIDIndexRebuilt:            "UUID_INDEX_REBUILT",
	StateTempChunksCleaned:           "TEMP_CHUNKS_CLEANED",
	StateFinalized:                   "FINALIZED",
	StateAborted:                     "ABORTED",
}

func (st State) String() string {
	if name, ok := stateNames[st]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(st))
}

func (fs *FS) advance(st State) {
	if st != StateAborted && st <= fs.state {
		panic(fmt.Errorf("should not happen: state went backwards: %v -> %v", fs.state, st))
	}
	fs.state = st
}
