// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
)

// recow rewrites every tree block, so that metadata written before
// the final RAID groups existed migrates into them.  Tree block
// allocation prefers the newest matching chunk, and a commit rewrites
// every block, so one more commit is all it takes.
func (fs *FS) recow(ctx context.Context) error {
	if err := fs.commit(ctx); err != nil {
		return err
	}
	for laddr, blk := range fs.lastLive {
		if blk.Gen != fs.gen {
			return fmt.Errorf("recow: block %v was not rewritten (generation %v, expected %v)",
				laddr, blk.Gen, fs.gen)
		}
	}
	dlog.Debugf(ctx, "recow: rewrote %v tree blocks at generation %v", len(fs.lastLive), fs.gen)
	fs.advance(StateRecowed)
	return nil
}
