// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// finalProfile returns the profile that block groups of the given
// type are supposed to end up with.
func (fs *FS) finalProfile(flags btrfsvol.BlockGroupFlags) btrfsvol.BlockGroupFlags {
	if flags.Has(btrfsvol.BLOCK_GROUP_DATA) && !flags.Has(btrfsvol.BLOCK_GROUP_METADATA) {
		return fs.cfg.DataProfile
	}
	return fs.cfg.MetaProfile
}

// cleanupTempChunks removes the bootstrap-era block groups that ended
// up empty once everything was rewritten into the final RAID groups.
func (fs *FS) cleanupTempChunks(ctx context.Context) error {
	used := make(map[btrfsvol.LogicalAddr]int64)
	for laddr, blk := range fs.lastLive {
		if chunk, ok := fs.space.chunkAt(laddr); ok {
			used[chunk.laddr] += int64(blk.Size)
		}
	}

	var victims []*chunkRecord
	for _, chunk := range fs.space.chunks {
		if chunk.flags.Has(btrfsvol.BLOCK_GROUP_METADATA_REMAP) {
			continue
		}
		if used[chunk.laddr] != 0 {
			continue
		}
		if chunk.flags.Profile() == fs.finalProfile(chunk.flags) {
			continue
		}
		victims = append(victims, chunk)
	}
	if len(victims) == 0 {
		fs.advance(StateTempChunksCleaned)
		return nil
	}

	for _, chunk := range victims {
		dlog.Debugf(ctx, "removing empty block group: laddr=%v size=%v flags=%v",
			chunk.laddr, chunk.size, chunk.flags)
		if err := fs.ledgerAdd(chunk.flags, -chunk.size); err != nil {
			return err
		}
		if err := fs.space.removeChunk(chunk.laddr); err != nil {
			return err
		}
	}

	if err := fs.commit(ctx); err != nil {
		return err
	}
	fs.advance(StateTempChunksCleaned)
	return nil
}
