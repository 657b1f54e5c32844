// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
)

// createOptionalRoots creates the trees that are gated on feature
// flags: the raid-stripe tree, the remap tree (whose block group the
// metadata step already reserved), and the extra global root groups.
func (fs *FS) createOptionalRoots(ctx context.Context) error {
	dirty := false

	if fs.cfg.Features.Has(btrfs.FeatureIncompatRAIDStripeTree) {
		dlog.Debugf(ctx, "creating raid-stripe tree")
		fs.simpleTree(btrfsprim.RAID_STRIPE_TREE_OBJECTID)
		dirty = true
	}

	if fs.cfg.Features.Has(btrfs.FeatureIncompatRemapTree) {
		dlog.Debugf(ctx, "creating remap tree")
		fs.simpleTree(btrfsprim.REMAP_TREE_OBJECTID)
		dirty = true
	}

	if fs.cfg.Features.Has(btrfs.FeatureIncompatExtentTreeV2) {
		for g := uint64(1); g < uint64(fs.cfg.NumGlobalRoots); g++ {
			fs.tree(treeKey{ID: btrfsprim.EXTENT_TREE_OBJECTID, GlobalID: g})
			fs.tree(treeKey{ID: btrfsprim.CSUM_TREE_OBJECTID, GlobalID: g})
			fs.tree(treeKey{ID: btrfsprim.FREE_SPACE_TREE_OBJECTID, GlobalID: g})
			dirty = true
		}
		dlog.Debugf(ctx, "created %v global root groups", fs.cfg.NumGlobalRoots)
	}

	if dirty {
		if err := fs.commit(ctx); err != nil {
			return err
		}
	}
	fs.advance(StateOptionalRootsReady)
	return nil
}
