// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfsmkfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/textui"
)

func main() {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	var cfg btrfsmkfs.Config
	var cfgFlags configFlags
	var jsonFlag bool

	argparser := &cobra.Command{
		Use:   "btrfs-mkfs [flags] DEVICE...",
		Short: "Create a btrfs filesystem",

		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")

	cfgFlags.addTo(argparser.Flags(), &cfg)
	argparser.Flags().BoolVar(&jsonFlag, "json", false, "print the result as JSON on stdout")

	argparser.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
		ctx = dlog.WithLogger(ctx, logger)
		dlog.SetFallbackLogger(logger.WithField("btrfs-mkfs.THIS_IS_A_BUG", true))

		if err := cfgFlags.resolve(&cfg); err != nil {
			return err
		}

		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
			EnableSignalHandling: true,
		})
		grp.Go("main", func(ctx context.Context) error {
			result, err := btrfsmkfs.Run(ctx, cfg, args)
			if err != nil {
				return err
			}
			if jsonFlag {
				buffer := bufio.NewWriter(os.Stdout)
				if err := lowmemjson.NewEncoder(lowmemjson.NewReEncoder(buffer, lowmemjson.ReEncoderConfig{
					Indent:                "\t",
					ForceTrailingNewlines: true,
				})).Encode(result); err != nil {
					return err
				}
				return buffer.Flush()
			}
			textui.Fprintf(os.Stdout, "filesystem UUID: %v\n", result.UUID)
			textui.Fprintf(os.Stdout, "total size:      %v\n", textui.IEC(result.NumBytes, "B"))
			return nil
		})
		return grp.Wait()
	}

	argparser.AddCommand(newInspectCommand(&logLevelFlag))

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
