// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import (
	"fmt"
)

// ChunkLayout is the physical layout of one chunk: where each stripe
// lives, and how logical bytes are spread across the stripes.
type ChunkLayout struct {
	Size       AddrDelta
	StripeLen  uint64
	Type       BlockGroupFlags
	SubStripes int
	Stripes    []QualifiedPhysicalAddr
}

// Resolve maps a chunk-relative offset to every physical location
// that holds that byte.
func (l ChunkLayout) Resolve(off AddrDelta) ([]QualifiedPhysicalAddr, error) {
	if off < 0 || off >= l.Size {
		return nil, fmt.Errorf("chunk-relative offset %v is out of bounds [0,%v)", off, l.Size)
	}
	profile := l.Type.Profile()
	switch profile {
	case 0, BLOCK_GROUP_DUP, BLOCK_GROUP_RAID1, BLOCK_GROUP_RAID1C3, BLOCK_GROUP_RAID1C4:
		ret := make([]QualifiedPhysicalAddr, 0, len(l.Stripes))
		for _, stripe := range l.Stripes {
			ret = append(ret, QualifiedPhysicalAddr{
				Dev:  stripe.Dev,
				Addr: stripe.Addr.Add(off),
			})
		}
		return ret, nil
	case BLOCK_GROUP_RAID0, BLOCK_GROUP_RAID10:
		sub := l.SubStripes
		if sub < 1 {
			sub = 1
		}
		groups := len(l.Stripes) / sub
		stripeNr := uint64(off) / l.StripeLen
		groupNr := stripeNr % uint64(groups)
		stripeOff := AddrDelta((stripeNr/uint64(groups))*l.StripeLen + uint64(off)%l.StripeLen)
		ret := make([]QualifiedPhysicalAddr, 0, sub)
		for j := 0; j < sub; j++ {
			stripe := l.Stripes[int(groupNr)*sub+j]
			ret = append(ret, QualifiedPhysicalAddr{
				Dev:  stripe.Dev,
				Addr: stripe.Addr.Add(stripeOff),
			})
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("unsupported chunk profile %v", profile)
	}
}
