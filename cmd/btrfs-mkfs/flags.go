// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfsmkfs"
)

// configFlags holds the raw string forms of the flags that need
// parsing before they can land in a btrfsmkfs.Config.
type configFlags struct {
	uuid     string
	metadata string
	data     string
	checksum string
	features []string
}

func (f *configFlags) addTo(flags *pflag.FlagSet, cfg *btrfsmkfs.Config) {
	flags.StringVarP(&cfg.Label, "label", "L", "", "the filesystem `label`")
	flags.StringVarP(&f.uuid, "uuid", "U", "", "the filesystem `UUID` (default: generate a random one)")
	flags.Uint32VarP(&cfg.NodeSize, "nodesize", "n", 0, "size of each tree block in `bytes` (default 16384)")
	flags.Uint32VarP(&cfg.SectorSize, "sectorsize", "s", 0, "data block allocation unit in `bytes` (default 4096)")
	flags.Int64VarP(&cfg.NumBytes, "byte-count", "b", 0, "use only the first `size` bytes of each device")
	flags.StringVarP(&f.metadata, "metadata", "m", "", "metadata redundancy `profile` (default: dup for one device, raid1 for several)")
	flags.StringVarP(&f.data, "data", "d", "", "data redundancy `profile` (default: single, or raid0 for several devices)")
	flags.BoolVarP(&cfg.Mixed, "mixed", "M", false, "mix metadata and data in the same block groups")
	flags.StringSliceVarP(&f.features, "features", "O", nil, "comma-separated list of filesystem `features` to enable")
	flags.StringVar(&f.checksum, "csum", "", "checksum algorithm: crc32c, xxhash, sha256, or blake2 (default crc32c)")
	flags.IntVar(&cfg.NumGlobalRoots, "num-global-roots", 0, "with extent-tree-v2, the `number` of global root groups (default: one per CPU)")
	flags.BoolVarP(&cfg.Force, "force", "f", false, "overwrite an existing filesystem signature")
	flags.BoolVarP(&cfg.NoDiscard, "nodiscard", "K", false, "do not discard the devices before use")
}

// resolve parses the raw flag strings into cfg.
func (f *configFlags) resolve(cfg *btrfsmkfs.Config) error {
	if f.uuid != "" {
		uuid, err := btrfsprim.ParseUUID(f.uuid)
		if err != nil {
			return err
		}
		cfg.UUID = uuid
	}
	if f.metadata != "" {
		prof, err := parseProfile(f.metadata)
		if err != nil {
			return err
		}
		cfg.MetaProfile = prof
		cfg.MetaProfileSet = true
	}
	if f.data != "" {
		prof, err := parseProfile(f.data)
		if err != nil {
			return err
		}
		cfg.DataProfile = prof
		cfg.DataProfileSet = true
	}
	if f.checksum != "" {
		typ, err := parseCSumType(f.checksum)
		if err != nil {
			return err
		}
		cfg.ChecksumType = typ
	}
	for _, name := range f.features {
		if err := applyFeature(cfg, name); err != nil {
			return err
		}
	}
	return nil
}

var profileNames = map[string]btrfsvol.BlockGroupFlags{
	"single":  0,
	"dup":     btrfsvol.BLOCK_GROUP_DUP,
	"raid0":   btrfsvol.BLOCK_GROUP_RAID0,
	"raid1":   btrfsvol.BLOCK_GROUP_RAID1,
	"raid1c3": btrfsvol.BLOCK_GROUP_RAID1C3,
	"raid1c4": btrfsvol.BLOCK_GROUP_RAID1C4,
	"raid10":  btrfsvol.BLOCK_GROUP_RAID10,
	"raid5":   btrfsvol.BLOCK_GROUP_RAID5,
	"raid6":   btrfsvol.BLOCK_GROUP_RAID6,
}

func parseProfile(str string) (btrfsvol.BlockGroupFlags, error) {
	prof, ok := profileNames[strings.ToLower(str)]
	if !ok {
		return 0, fmt.Errorf("unknown redundancy profile: %q", str)
	}
	return prof, nil
}

func parseCSumType(str string) (btrfssum.CSumType, error) {
	for typ := btrfssum.TYPE_CRC32; typ.Valid(); typ++ {
		if typ.String() == strings.ToLower(str) {
			return typ, nil
		}
	}
	// accept the common aliases too
	switch strings.ToLower(str) {
	case "crc32":
		return btrfssum.TYPE_CRC32, nil
	case "xxhash":
		return btrfssum.TYPE_XXHASH, nil
	}
	return 0, fmt.Errorf("unknown checksum algorithm: %q", str)
}

func applyFeature(cfg *btrfsmkfs.Config, name string) error {
	switch strings.ToLower(name) {
	case "mixed-bg":
		cfg.Mixed = true
	case "extref":
		cfg.Features |= btrfs.FeatureIncompatExtendedIRef
	case "skinny-metadata":
		cfg.Features |= btrfs.FeatureIncompatSkinnyMetadata
	case "no-holes":
		cfg.Features |= btrfs.FeatureIncompatNoHoles
	case "raid56":
		cfg.Features |= btrfs.FeatureIncompatRAID56
	case "raid1c34":
		cfg.Features |= btrfs.FeatureIncompatRAID1C34
	case "extent-tree-v2":
		cfg.Features |= btrfs.FeatureIncompatExtentTreeV2
	case "raid-stripe-tree":
		cfg.Features |= btrfs.FeatureIncompatRAIDStripeTree
	case "remap-tree":
		cfg.Features |= btrfs.FeatureIncompatRemapTree
	case "block-group-tree":
		cfg.RuntimeFeatures |= btrfs.FeatureCompatROBlockGroupTree
	case "free-space-tree":
		cfg.RuntimeFeatures |= btrfs.FeatureCompatROFreeSpaceTree |
			btrfs.FeatureCompatROFreeSpaceTreeValid
	default:
		return fmt.Errorf("unknown filesystem feature: %q", name)
	}
	return nil
}
