// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/diskio"
)

// preparedDevice is one target device, after the Device Preparer has
// run on it.
type preparedDevice struct {
	path string
	dev  *btrfs.Device

	id   btrfsvol.DeviceID
	uuid btrfsprim.UUID
	size btrfsvol.PhysicalAddr // usable bytes, rounded down to the sector size

	// err is only ever set on devices beyond the first: their
	// preparation failure is deferred until the Device Attacher
	// looks at them.
	err error
}

// minDeviceSize is the smallest device this tool will format.  The
// bootstrap system group, a metadata chunk, and all three superblock
// mirrors that fit need to land somewhere.
const minDeviceSize = 64 * 1024 * 1024

// prepareDevices opens and prepares every device, concurrently.  A
// failure on the first device (or a validation failure) closes
// everything and aborts; failures on extra devices are recorded on
// the returned records and surfaced later, when the Device Attacher
// gets to them.
func prepareDevices(ctx context.Context, cfg Config, paths []string) ([]*preparedDevice, error) {
	if len(paths) == 0 {
		return nil, errInval("empty device list")
	}
	ret := make([]*preparedDevice, len(paths))
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for i := range paths {
		i := i
		grp.Go(fmt.Sprintf("prepare/%d", i), func(ctx context.Context) error {
			ctx = dlog.WithField(ctx, "btrfs.mkfs.dev", paths[i])
			pd := &preparedDevice{
				path: paths[i],
				id:   btrfsvol.DeviceID(i + 1),
				uuid: btrfsprim.NewUUID(),
			}
			pd.err = pd.prepare(ctx, cfg)
			ret[i] = pd
			return nil
		})
	}
	// The workers never return errors; per-device status lives on
	// the records.
	_ = grp.Wait()

	if err := ret[0].err; err != nil {
		for _, pd := range ret {
			pd.close()
		}
		return nil, err
	}
	return ret, nil
}

func (pd *preparedDevice) prepare(ctx context.Context, cfg Config) error {
	fh, err := os.OpenFile(pd.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	pd.dev = &btrfs.Device{File: &diskio.OSFile[btrfsvol.PhysicalAddr]{File: fh}}

	if !cfg.Force {
		hasSig, err := pd.dev.HasSignature()
		if err != nil {
			return err
		}
		if hasSig {
			return errExists("%q: filesystem signature already present", pd.path)
		}
	}

	probed := pd.dev.Size()
	size := probed
	if cfg.NumBytes > 0 {
		if btrfsvol.PhysicalAddr(cfg.NumBytes) > probed {
			return errNoSpace("%q: requested %v bytes but the device only has %v",
				pd.path, cfg.NumBytes, probed)
		}
		size = btrfsvol.PhysicalAddr(cfg.NumBytes)
	}
	size -= size % btrfsvol.PhysicalAddr(cfg.SectorSize)
	if size < minDeviceSize {
		return errNoSpace("%q: device size %v is below the minimum of %v",
			pd.path, size, btrfsvol.PhysicalAddr(minDeviceSize))
	}
	pd.size = size

	if !cfg.NoDiscard {
		if osFile, ok := pd.dev.File.(*diskio.OSFile[btrfsvol.PhysicalAddr]); ok {
			if err := diskio.Discard(osFile.File, int64(size)); err != nil {
				dlog.Debugf(ctx, "discard not used: %v", err)
			}
		}
	}

	return pd.zero(cfg)
}

// zero clears the regions that could be mistaken for leftover
// metadata: the reserved area at the front, each superblock mirror
// slot, and the trailing megabyte.
func (pd *preparedDevice) zero(cfg Config) error {
	zeroes := make([]byte, devReservedStart)
	if err := diskio.WriteAll[btrfsvol.PhysicalAddr](pd.dev, zeroes, 0); err != nil {
		return err
	}
	for _, addr := range pd.dev.SuperblockAddrs() {
		if err := diskio.WriteAll[btrfsvol.PhysicalAddr](pd.dev, zeroes[:btrfs.SuperblockSize], addr); err != nil {
			return err
		}
	}
	if tail := pd.size - devReservedStart; tail > 0 {
		if err := diskio.WriteAll[btrfsvol.PhysicalAddr](pd.dev, zeroes, tail); err != nil {
			return err
		}
	}
	return nil
}

func (pd *preparedDevice) close() {
	if pd.dev != nil {
		_ = pd.dev.Close()
		pd.dev = nil
	}
}
