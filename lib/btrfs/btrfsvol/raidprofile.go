// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import (
	"fmt"
)

// RaidAttrs describes the shape of a RAID profile: how many devices
// it needs, how it replicates, and how it stripes.
type RaidAttrs struct {
	// DevsMin is the minimum number of distinct devices the
	// profile can be laid out on.
	DevsMin int
	// DevsIncrement is the granularity of the device count; RAID10
	// needs an even number of stripes.
	DevsIncrement int
	// DevStripes is the number of stripes placed on a single
	// device; 2 for DUP, else 1.
	DevStripes int
	// NCopies is the number of complete copies of the data.
	NCopies int
	// NParity is the number of parity stripes.
	NParity int
	// SubStripes is 2 for RAID10, else 1.
	SubStripes int
}

var raidAttrs = map[BlockGroupFlags]RaidAttrs{
	0:                   {DevsMin: 1, DevsIncrement: 1, DevStripes: 1, NCopies: 1, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_DUP:     {DevsMin: 1, DevsIncrement: 1, DevStripes: 2, NCopies: 2, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_RAID0:   {DevsMin: 2, DevsIncrement: 1, DevStripes: 1, NCopies: 1, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_RAID1:   {DevsMin: 2, DevsIncrement: 1, DevStripes: 1, NCopies: 2, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_RAID1C3: {DevsMin: 3, DevsIncrement: 1, DevStripes: 1, NCopies: 3, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_RAID1C4: {DevsMin: 4, DevsIncrement: 1, DevStripes: 1, NCopies: 4, NParity: 0, SubStripes: 1},
	BLOCK_GROUP_RAID10:  {DevsMin: 4, DevsIncrement: 2, DevStripes: 1, NCopies: 2, NParity: 0, SubStripes: 2},
	BLOCK_GROUP_RAID5:   {DevsMin: 2, DevsIncrement: 1, DevStripes: 1, NCopies: 1, NParity: 1, SubStripes: 1},
	BLOCK_GROUP_RAID6:   {DevsMin: 3, DevsIncrement: 1, DevStripes: 1, NCopies: 1, NParity: 2, SubStripes: 1},
}

// LookupRaidAttrs returns the attributes of the profile bits of
// `profile`.  It errors if more than one profile bit is set, or if a
// bit outside of the profile mask is set.
func LookupRaidAttrs(profile BlockGroupFlags) (RaidAttrs, error) {
	if profile&^BLOCK_GROUP_PROFILE_MASK != 0 {
		return RaidAttrs{}, fmt.Errorf("lookup raid attrs: %v is not a profile", profile)
	}
	attrs, ok := raidAttrs[profile]
	if !ok {
		return RaidAttrs{}, fmt.Errorf("lookup raid attrs: %v is not a single profile", profile)
	}
	return attrs, nil
}

// MaxStripes returns how many stripes a chunk with this profile gets
// when laid out across numDevs devices, or 0 if numDevs is too few.
func (a RaidAttrs) MaxStripes(numDevs int) int {
	numDevs -= numDevs % a.DevsIncrement
	if numDevs < a.DevsMin {
		return 0
	}
	switch {
	case a.DevStripes > 1:
		// DUP: both stripes on one device.
		return a.DevStripes
	case a.NCopies > 1 && a.SubStripes == 1:
		// The RAID1 family mirrors, it does not stripe wide.
		return a.NCopies
	default:
		// RAID0/10/5/6 use every usable device; the DevsIncrement
		// rounding above already trimmed RAID10 to an even count.
		return numDevs
	}
}

// DataStripes returns how many of numStripes stripes hold distinct
// data; the chunk's logical size is DataStripes times the per-device
// stripe size.
func (a RaidAttrs) DataStripes(numStripes int) int {
	return (numStripes - a.NParity) / a.NCopies
}
