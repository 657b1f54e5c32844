// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

// createRAIDGroups allocates the block groups with the final
// redundancy profiles, now that every device is attached.  The
// bootstrap groups carry no profile bits; if the final profiles are
// "single" too, there is nothing to create and the bootstrap groups
// are simply kept.
func (fs *FS) createRAIDGroups(ctx context.Context) error {
	metaProf := fs.cfg.MetaProfile
	dataProf := fs.cfg.DataProfile

	// device registrations from the attach step are not on disk
	// yet; they ride this step's commit
	dirty := len(fs.attached) > 1
	if fs.cfg.Mixed {
		if metaProf != 0 {
			mixedMask := btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_METADATA
			if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_SYSTEM|mixedMask|metaProf, systemGroupSize); err != nil {
				return err
			}
			if _, err := fs.allocGroup(ctx, mixedMask|metaProf, fs.metaChunkSize()); err != nil {
				return err
			}
			dirty = true
		}
	} else {
		if metaProf != 0 {
			if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_SYSTEM|metaProf, systemGroupSize); err != nil {
				return err
			}
			if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_METADATA|metaProf, fs.metaChunkSize()); err != nil {
				return err
			}
			dirty = true
		}
		if dataProf != 0 {
			if _, err := fs.allocGroup(ctx, btrfsvol.BLOCK_GROUP_DATA|dataProf, fs.dataChunkSize()); err != nil {
				return err
			}
			dirty = true
		}
	}

	if dirty {
		if err := fs.commit(ctx); err != nil {
			return err
		}
	}
	fs.advance(StateRAIDGroupsCreated)
	return nil
}
