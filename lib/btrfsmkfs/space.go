// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"fmt"
	"sort"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

const (
	// stripeLen is the btrfs RAID stripe length.
	stripeLen = 64 * 1024
	// chunkAlign is the alignment of chunk stripes on a device.
	chunkAlign = 1024 * 1024
)

// physExtent is a free physical region on one device.
type physExtent struct {
	Start btrfsvol.PhysicalAddr
	Size  btrfsvol.AddrDelta
}

// devSpace tracks the unallocated physical space of one device.
type devSpace struct {
	id   btrfsvol.DeviceID
	uuid btrfsprim.UUID
	size btrfsvol.PhysicalAddr

	free []physExtent // sorted by Start, non-adjacent
}

func newDevSpace(id btrfsvol.DeviceID, uuid btrfsprim.UUID, size btrfsvol.PhysicalAddr) *devSpace {
	return &devSpace{
		id:   id,
		uuid: uuid,
		size: size,
		free: []physExtent{{
			Start: devReservedStart,
			Size:  size.Sub(devReservedStart),
		}},
	}
}

func (ds *devSpace) freeBytes() btrfsvol.AddrDelta {
	var total btrfsvol.AddrDelta
	for _, ext := range ds.free {
		total += ext.Size
	}
	return total
}

// alloc carves out a chunkAlign-aligned region of the given size,
// first-fit.
func (ds *devSpace) alloc(size btrfsvol.AddrDelta) (btrfsvol.PhysicalAddr, error) {
	for i, ext := range ds.free {
		start := ext.Start
		if rem := int64(start) % chunkAlign; rem != 0 {
			start = start.Add(btrfsvol.AddrDelta(chunkAlign - rem))
		}
		pad := start.Sub(ext.Start)
		if ext.Size < pad+size {
			continue
		}
		var repl []physExtent
		if pad > 0 {
			repl = append(repl, physExtent{Start: ext.Start, Size: pad})
		}
		if rest := ext.Size - pad - size; rest > 0 {
			repl = append(repl, physExtent{Start: start.Add(size), Size: rest})
		}
		ds.free = append(ds.free[:i], append(repl, ds.free[i+1:]...)...)
		return start, nil
	}
	return 0, errNoSpace("device %v: no free extent of %v bytes", ds.id, size)
}

// dealloc returns a region to the free list, merging with neighbors.
func (ds *devSpace) dealloc(start btrfsvol.PhysicalAddr, size btrfsvol.AddrDelta) {
	ds.free = append(ds.free, physExtent{Start: start, Size: size})
	sort.Slice(ds.free, func(i, j int) bool { return ds.free[i].Start < ds.free[j].Start })
	merged := ds.free[:1]
	for _, ext := range ds.free[1:] {
		last := &merged[len(merged)-1]
		if last.Start.Add(last.Size) == ext.Start {
			last.Size += ext.Size
		} else {
			merged = append(merged, ext)
		}
	}
	ds.free = merged
}

// chunkStripe is one physical stripe of a chunk.
type chunkStripe struct {
	DevID btrfsvol.DeviceID
	Paddr btrfsvol.PhysicalAddr
}

// chunkRecord is the live record of one allocated chunk / block
// group.
type chunkRecord struct {
	laddr      btrfsvol.LogicalAddr
	size       btrfsvol.AddrDelta // logical size
	flags      btrfsvol.BlockGroupFlags
	subStripes int
	stripeSize btrfsvol.AddrDelta // per-stripe physical size
	stripes    []chunkStripe
}

func (c *chunkRecord) layout() btrfsvol.ChunkLayout {
	layout := btrfsvol.ChunkLayout{
		Size:       c.size,
		StripeLen:  stripeLen,
		Type:       c.flags,
		SubStripes: c.subStripes,
	}
	for _, stripe := range c.stripes {
		layout.Stripes = append(layout.Stripes, btrfsvol.QualifiedPhysicalAddr{
			Dev:  stripe.DevID,
			Addr: stripe.Paddr,
		})
	}
	return layout
}

// spaceManager owns the persistent allocation state: every device's
// free space and every chunk.
type spaceManager struct {
	devs     map[btrfsvol.DeviceID]*devSpace
	devOrder []btrfsvol.DeviceID

	chunks      []*chunkRecord // ascending laddr; allocation appends
	nextLogical btrfsvol.LogicalAddr
}

func newSpaceManager() *spaceManager {
	return &spaceManager{
		devs:        make(map[btrfsvol.DeviceID]*devSpace),
		nextLogical: devReservedStart,
	}
}

func (sm *spaceManager) addDevice(id btrfsvol.DeviceID, uuid btrfsprim.UUID, size btrfsvol.PhysicalAddr) {
	sm.devs[id] = newDevSpace(id, uuid, size)
	sm.devOrder = append(sm.devOrder, id)
}

func (sm *spaceManager) totalBytes() uint64 {
	var total uint64
	for _, id := range sm.devOrder {
		total += uint64(sm.devs[id].size)
	}
	return total
}

// allocChunk allocates one chunk of the given type+profile.
// logicalSize is a target; the actual size is rounded to the
// profile's stripe arithmetic and may be smaller if the devices are
// nearly full, but never smaller than one stripe-length per data
// stripe.
func (sm *spaceManager) allocChunk(flags btrfsvol.BlockGroupFlags, logicalSize btrfsvol.AddrDelta) (*chunkRecord, error) {
	attrs, err := btrfsvol.LookupRaidAttrs(flags.Profile())
	if err != nil {
		return nil, err
	}

	// Order devices by free space, fullest-free first.
	devs := make([]*devSpace, 0, len(sm.devOrder))
	for _, id := range sm.devOrder {
		if sm.devs[id].freeBytes() > 0 {
			devs = append(devs, sm.devs[id])
		}
	}
	sort.SliceStable(devs, func(i, j int) bool {
		return devs[i].freeBytes() > devs[j].freeBytes()
	})

	numStripes := attrs.MaxStripes(len(devs))
	if attrs.DevStripes > 1 && len(devs) > 0 {
		numStripes = attrs.DevStripes
	}
	if numStripes == 0 {
		return nil, errNoSpace("chunk %v: not enough devices with free space", flags)
	}
	dataStripes := attrs.DataStripes(numStripes)

	stripeSize := logicalSize / btrfsvol.AddrDelta(dataStripes)
	stripeSize -= stripeSize % stripeLen
	if stripeSize < stripeLen {
		stripeSize = stripeLen
	}

	chunk := &chunkRecord{
		laddr:      sm.nextLogical,
		flags:      flags,
		subStripes: attrs.SubStripes,
	}

	for stripeSize >= stripeLen {
		stripes, err := sm.allocStripes(devs, attrs, numStripes, stripeSize)
		if err == nil {
			chunk.stripes = stripes
			break
		}
		// Halve and retry before giving up; mkfs-time chunks
		// need not be full-size.
		stripeSize = (stripeSize / 2)
		stripeSize -= stripeSize % stripeLen
	}
	if chunk.stripes == nil {
		return nil, errNoSpace("chunk %v: no room for %v stripes", flags, numStripes)
	}
	chunk.stripeSize = stripeSize
	chunk.size = stripeSize * btrfsvol.AddrDelta(dataStripes)

	sm.chunks = append(sm.chunks, chunk)
	sm.nextLogical = chunk.laddr.Add(chunk.size)
	return chunk, nil
}

func (sm *spaceManager) allocStripes(devs []*devSpace, attrs btrfsvol.RaidAttrs, numStripes int, stripeSize btrfsvol.AddrDelta) ([]chunkStripe, error) {
	var stripes []chunkStripe
	undo := func() {
		for _, stripe := range stripes {
			sm.devs[stripe.DevID].dealloc(stripe.Paddr, stripeSize)
		}
	}
	if attrs.DevStripes > 1 {
		// DUP: all stripes on the single emptiest device.
		if len(devs) == 0 {
			return nil, errNoSpace("no devices")
		}
		ds := devs[0]
		for i := 0; i < numStripes; i++ {
			paddr, err := ds.alloc(stripeSize)
			if err != nil {
				undo()
				return nil, err
			}
			stripes = append(stripes, chunkStripe{DevID: ds.id, Paddr: paddr})
		}
		return stripes, nil
	}
	for i := 0; i < numStripes; i++ {
		ds := devs[i%len(devs)]
		paddr, err := ds.alloc(stripeSize)
		if err != nil {
			undo()
			return nil, err
		}
		stripes = append(stripes, chunkStripe{DevID: ds.id, Paddr: paddr})
	}
	return stripes, nil
}

// removeChunk deletes a chunk record and returns its physical space
// to the devices.
func (sm *spaceManager) removeChunk(laddr btrfsvol.LogicalAddr) error {
	for i, chunk := range sm.chunks {
		if chunk.laddr != laddr {
			continue
		}
		for _, stripe := range chunk.stripes {
			sm.devs[stripe.DevID].dealloc(stripe.Paddr, chunk.stripeSize)
		}
		sm.chunks = append(sm.chunks[:i], sm.chunks[i+1:]...)
		return nil
	}
	return fmt.Errorf("remove chunk: no chunk at %v", laddr)
}

func (sm *spaceManager) chunkAt(laddr btrfsvol.LogicalAddr) (*chunkRecord, bool) {
	for _, chunk := range sm.chunks {
		if chunk.laddr <= laddr && laddr < chunk.laddr.Add(chunk.size) {
			return chunk, true
		}
	}
	return nil, false
}

// nodeAllocator hands out logical addresses for tree blocks within
// the existing chunks.  It is transient: each commit serialization
// starts from a fresh one, so blocks from earlier commits are
// implicitly freed.
type nodeAllocator struct {
	sm     *spaceManager
	cursor map[*chunkRecord]btrfsvol.AddrDelta
}

func newNodeAllocator(sm *spaceManager) *nodeAllocator {
	return &nodeAllocator{
		sm:     sm,
		cursor: make(map[*chunkRecord]btrfsvol.AddrDelta),
	}
}

// alloc returns space for one tree block of the given size.  want is
// the required type bit (SYSTEM or METADATA); newest matching chunks
// are preferred so that blocks land in the final RAID groups once
// those exist.  Metadata falls back to borrowing from a SYSTEM chunk
// when no metadata chunk exists yet.
func (na *nodeAllocator) alloc(want btrfsvol.BlockGroupFlags, size uint32) (btrfsvol.LogicalAddr, error) {
	if laddr, ok := na.tryAlloc(want, size, true); ok {
		return laddr, nil
	}
	if want == btrfsvol.BLOCK_GROUP_METADATA {
		if laddr, ok := na.tryAlloc(btrfsvol.BLOCK_GROUP_SYSTEM, size, false); ok {
			return laddr, nil
		}
	}
	return 0, errNoSpace("tree block: no %v chunk has %v free bytes", want, size)
}

func (na *nodeAllocator) tryAlloc(want btrfsvol.BlockGroupFlags, size uint32, strict bool) (btrfsvol.LogicalAddr, bool) {
	for i := len(na.sm.chunks) - 1; i >= 0; i-- {
		chunk := na.sm.chunks[i]
		if !chunk.flags.Has(want) {
			continue
		}
		if strict && want == btrfsvol.BLOCK_GROUP_METADATA && chunk.flags.Has(btrfsvol.BLOCK_GROUP_SYSTEM) {
			continue
		}
		cursor := na.cursor[chunk]
		if cursor+btrfsvol.AddrDelta(size) > chunk.size {
			continue
		}
		na.cursor[chunk] = cursor + btrfsvol.AddrDelta(size)
		return chunk.laddr.Add(cursor), true
	}
	return 0, false
}
