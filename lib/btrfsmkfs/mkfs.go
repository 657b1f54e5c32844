// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/textui"
)

// Result describes the filesystem that Run created.
type Result struct {
	UUID     string `json:"uuid"`
	NumBytes int64  `json:"numBytes"`
}

// Run formats the given devices as one btrfs filesystem.  On any
// error the operation is aborted: the devices are released as-is, in
// whatever half-written state they were in.
func Run(ctx context.Context, cfg Config, paths []string) (*Result, error) {
	if err := cfg.FillDefaults(len(paths)); err != nil {
		return nil, err
	}

	devices, err := prepareDevices(ctx, cfg, paths)
	if err != nil {
		return nil, err
	}
	fs := newFS(cfg, devices)
	fs.advance(StateDevicesPrepared)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"bootstrap", fs.bootstrap},
		{"metadata-groups", fs.createMetadataGroups},
		{"optional-roots", fs.createOptionalRoots},
		{"data-groups", fs.createDataGroupsAndRootDir},
		{"attach-devices", fs.attachDevices},
		{"raid-groups", fs.createRAIDGroups},
		{"recow", fs.recow},
		{"reloc", fs.setupRelocOrRemap},
		{"uuid-index", fs.rebuildUUIDIndex},
		{"cleanup", fs.cleanupTempChunks},
	}
	for _, step := range steps {
		stepCtx := dlog.WithField(ctx, "btrfs.mkfs.step", step.name)
		if err := step.fn(stepCtx); err != nil {
			fs.abort()
			return nil, fmt.Errorf("step %q: %w", step.name, err)
		}
	}

	if err := fs.finalize(ctx); err != nil {
		fs.abort()
		return nil, err
	}

	return &Result{
		UUID:     fs.fsUUID.String(),
		NumBytes: int64(fs.space.totalBytes()),
	}, nil
}

// finalize closes every device handle, which flushes the image to
// disk, and reports the allocation totals.
func (fs *FS) finalize(ctx context.Context) error {
	var errs []error
	for _, pd := range fs.devices {
		if pd.dev == nil {
			continue
		}
		if err := pd.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", pd.path, err))
		}
		pd.dev = nil
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	fs.advance(StateFinalized)
	dlog.Infof(ctx, "filesystem %v created: %v across %v devices",
		fs.fsUUID, textui.IEC(fs.space.totalBytes(), "B"), len(fs.attached))
	dlog.Infof(ctx, "allocated: data=%v metadata=%v mixed=%v system=%v remap=%v",
		textui.IEC(fs.ledger.Data, "B"),
		textui.IEC(fs.ledger.Metadata, "B"),
		textui.IEC(fs.ledger.Mixed, "B"),
		textui.IEC(fs.ledger.System, "B"),
		textui.IEC(fs.ledger.Remap, "B"))
	dlog.Infof(ctx, "bytes used: %v", textui.Portion[int64]{
		N: int64(fs.sb.BytesUsed),
		D: int64(fs.space.totalBytes()),
	})
	return nil
}

// abort releases every device without attempting any further writes.
func (fs *FS) abort() {
	for _, pd := range fs.devices {
		pd.close()
	}
	fs.state = StateAborted
}
