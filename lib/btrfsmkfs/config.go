// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsmkfs creates a new btrfs filesystem on one or more
// devices.
package btrfsmkfs

import (
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

const (
	DefaultNodeSize   = 16 * 1024
	DefaultSectorSize = 4 * 1024

	// MaxLabelLen is the size of the superblock's label field,
	// minus room for a trailing NUL.
	MaxLabelLen = 255

	// systemGroupSize is the fixed size of the bootstrap SYSTEM
	// block group.
	systemGroupSize = 4 * 1024 * 1024

	// devReservedStart is the physical region at the front of every
	// device that is never allocated: the boot area plus the primary
	// superblock.
	devReservedStart = 1024 * 1024
)

// Config is the immutable input to Run.  The zero value of most
// fields means "pick a default".
type Config struct {
	Label string

	// UUID is the filesystem UUID; the zero UUID means to generate
	// a random one.
	UUID btrfsprim.UUID

	NodeSize   uint32
	SectorSize uint32

	// NumBytes caps how many bytes of each device to use; 0 means
	// to use each device's full probed size.
	NumBytes int64

	// MetaProfile and DataProfile are the requested final
	// redundancy profiles; valid only if the corresponding -Set
	// field is true, in which case 0 means the "single" profile.
	// When unset, defaults are chosen based on the device count.
	MetaProfile    btrfsvol.BlockGroupFlags
	MetaProfileSet bool
	DataProfile    btrfsvol.BlockGroupFlags
	DataProfileSet bool

	// Mixed selects mixed block groups: metadata and data share
	// the same chunks; forces NodeSize == SectorSize.
	Mixed bool

	Features        btrfs.IncompatFlags
	RuntimeFeatures btrfs.CompatROFlags

	// NumGlobalRoots is the number of extent/csum/free-space tree
	// shards; meaningful only with the extent-tree-v2 feature.  0
	// means one shard per logical CPU.
	NumGlobalRoots int

	ChecksumType btrfssum.CSumType

	// Force skips the existing-filesystem-signature check.
	Force bool
	// NoDiscard suppresses discarding the devices before use.
	NoDiscard bool
}

// FillDefaults resolves all of the zero-value "pick a default" fields
// for a filesystem spanning numDevices devices, and validates the
// result.
func (cfg *Config) FillDefaults(numDevices int) error {
	if numDevices < 1 {
		return errInval("need at least one device")
	}
	if cfg.SectorSize == 0 {
		cfg.SectorSize = DefaultSectorSize
	}
	if cfg.NodeSize == 0 {
		if cfg.Mixed {
			cfg.NodeSize = cfg.SectorSize
		} else {
			cfg.NodeSize = DefaultNodeSize
		}
	}
	if cfg.ChecksumType == 0 {
		cfg.ChecksumType = btrfssum.TYPE_CRC32
	}

	if !cfg.MetaProfileSet {
		switch {
		case cfg.Mixed:
			cfg.MetaProfile = 0
		case numDevices > 1:
			cfg.MetaProfile = btrfsvol.BLOCK_GROUP_RAID1
		default:
			cfg.MetaProfile = btrfsvol.BLOCK_GROUP_DUP
		}
		cfg.MetaProfileSet = true
	}
	if !cfg.DataProfileSet {
		if numDevices > 1 && !cfg.Mixed {
			cfg.DataProfile = btrfsvol.BLOCK_GROUP_RAID0
		} else {
			cfg.DataProfile = 0
		}
		cfg.DataProfileSet = true
	}

	cfg.Features |= btrfs.FeatureIncompatMixedBackref |
		btrfs.FeatureIncompatExtendedIRef |
		btrfs.FeatureIncompatSkinnyMetadata |
		btrfs.FeatureIncompatNoHoles
	cfg.RuntimeFeatures |= btrfs.FeatureCompatROFreeSpaceTree |
		btrfs.FeatureCompatROFreeSpaceTreeValid
	if cfg.Mixed {
		cfg.Features |= btrfs.FeatureIncompatMixedGroups
	}
	if cfg.NodeSize > cfg.SectorSize {
		cfg.Features |= btrfs.FeatureIncompatBigMetadata
	}
	profiles := cfg.MetaProfile | cfg.DataProfile
	if profiles&btrfsvol.BLOCK_GROUP_RAID56_MASK != 0 {
		cfg.Features |= btrfs.FeatureIncompatRAID56
	}
	if profiles&(btrfsvol.BLOCK_GROUP_RAID1C3|btrfsvol.BLOCK_GROUP_RAID1C4) != 0 {
		cfg.Features |= btrfs.FeatureIncompatRAID1C34
	}
	if cfg.Features.Has(btrfs.FeatureIncompatExtentTreeV2) {
		cfg.RuntimeFeatures |= btrfs.FeatureCompatROBlockGroupTree
		if cfg.NumGlobalRoots < 1 {
			cfg.NumGlobalRoots = runtime.NumCPU()
		}
	} else {
		cfg.NumGlobalRoots = 0
	}

	return cfg.validate(numDevices)
}

func (cfg Config) validate(numDevices int) error {
	if len(cfg.Label) > MaxLabelLen {
		return errInval("label is longer than %v bytes", MaxLabelLen)
	}
	if strings.ContainsAny(cfg.Label, "\n") {
		return errInval("label must not contain a newline")
	}
	if !isPowerOfTwo(cfg.SectorSize) || !isPowerOfTwo(cfg.NodeSize) {
		return errInval("sector size and node size must be powers of two")
	}
	if cfg.NodeSize < cfg.SectorSize {
		return errInval("node size (%v) must not be smaller than sector size (%v)",
			cfg.NodeSize, cfg.SectorSize)
	}
	if cfg.NodeSize > 64*1024 {
		return errInval("node size (%v) must not be larger than 64KiB", cfg.NodeSize)
	}
	if cfg.Mixed && cfg.NodeSize != cfg.SectorSize {
		return errInval("with mixed block groups node size must equal sector size")
	}
	if !cfg.ChecksumType.Valid() {
		return errInval("unknown checksum algorithm %v", uint16(cfg.ChecksumType))
	}
	for _, prof := range []struct {
		name string
		val  btrfsvol.BlockGroupFlags
	}{
		{"metadata", cfg.MetaProfile},
		{"data", cfg.DataProfile},
	} {
		attrs, err := btrfsvol.LookupRaidAttrs(prof.val)
		if err != nil {
			return errInval("%v profile: %v", prof.name, err)
		}
		if attrs.MaxStripes(numDevices) == 0 {
			return errInval("%v profile %v needs at least %v devices, have %v",
				prof.name, prof.val, attrs.DevsMin, numDevices)
		}
	}
	if cfg.MetaProfile&btrfsvol.BLOCK_GROUP_RAID56_MASK != 0 {
		// Writing parity for every tree block is not
		// implemented; raid5/6 stays data-only.
		return errUnsupported("metadata profile %v", cfg.MetaProfile)
	}
	if cfg.Mixed && cfg.MetaProfile != cfg.DataProfile {
		return errInval("with mixed block groups metadata and data profiles must match")
	}
	return nil
}

func errUnsupported(format string, a ...any) error {
	return errWrap(unix.EOPNOTSUPP, format, a...)
}

func isPowerOfTwo(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}
