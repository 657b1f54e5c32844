// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/davecgh/go-spew/spew"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/textui"
)

// newInspectCommand builds the "inspect" subcommand, which dumps the
// superblock and tree roots of an already-created filesystem.  It is
// mostly there to eyeball the output of this tool itself.
func newInspectCommand(logLevelFlag *textui.LogLevelFlag) *cobra.Command {
	var treesFlag bool

	cmd := &cobra.Command{
		Use:   "inspect [flags] DEVICE...",
		Short: "Print the superblock (and optionally the trees) of a filesystem",

		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
	}
	cmd.Flags().BoolVar(&treesFlag, "trees", false, "also walk and print every tree item")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
		ctx = dlog.WithLogger(ctx, logger)

		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
			EnableSignalHandling: true,
		})
		grp.Go("main", func(ctx context.Context) (err error) {
			fs, err := btrfs.OpenFS(args...)
			if err != nil {
				return err
			}
			defer func() {
				if _err := fs.Close(); err == nil {
					err = _err
				}
			}()

			sb, err := fs.Superblock()
			if err != nil {
				return err
			}
			printer := spew.NewDefaultConfig()
			printer.DisablePointerAddresses = true
			printer.Dump(*sb)

			if !treesFlag {
				return nil
			}
			for _, treeID := range []btrfsprim.ObjID{
				btrfsprim.ROOT_TREE_OBJECTID,
				btrfsprim.CHUNK_TREE_OBJECTID,
				btrfsprim.DEV_TREE_OBJECTID,
				btrfsprim.EXTENT_TREE_OBJECTID,
				btrfsprim.FS_TREE_OBJECTID,
				btrfsprim.FREE_SPACE_TREE_OBJECTID,
			} {
				dlog.Infof(ctx, "tree %v:", treeID)
				err := fs.TreeWalk(treeID, func(item btrfs.Item) error {
					textui.Fprintf(os.Stdout, "key=%v\n", item.Key)
					printer.Dump(item.Body)
					return nil
				})
				if err != nil {
					dlog.Errorf(ctx, "tree %v: %v", treeID, err)
				}
			}
			return nil
		})
		return grp.Wait()
	}
	return cmd
}
