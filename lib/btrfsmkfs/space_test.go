// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

const testDevSize = 256 * 1024 * 1024

func TestDevSpaceAlloc(t *testing.T) {
	t.Parallel()
	ds := newDevSpace(1, btrfsprim.NewUUID(), testDevSize)
	assert.Equal(t, btrfsvol.AddrDelta(testDevSize-devReservedStart), ds.freeBytes())

	// first-fit starts right after the reserved area, which is
	// already chunkAlign-aligned
	paddr, err := ds.alloc(4 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.PhysicalAddr(devReservedStart), paddr)

	// a second allocation is aligned up, leaving no gap here since
	// the previous one ended on an alignment boundary
	paddr2, err := ds.alloc(stripeLen)
	require.NoError(t, err)
	assert.Equal(t, paddr.Add(4*1024*1024), paddr2)

	// the next allocation skips the 64KiB remainder to stay aligned
	paddr3, err := ds.alloc(chunkAlign)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.PhysicalAddr(0), paddr3%chunkAlign)
	assert.Greater(t, paddr3, paddr2)

	// asking for more than the device has fails
	_, err = ds.alloc(testDevSize)
	assert.Error(t, err)
}

func TestDevSpaceDealloc(t *testing.T) {
	t.Parallel()
	ds := newDevSpace(1, btrfsprim.NewUUID(), testDevSize)
	before := ds.freeBytes()

	a, err := ds.alloc(chunkAlign)
	require.NoError(t, err)
	b, err := ds.alloc(chunkAlign)
	require.NoError(t, err)
	assert.Equal(t, before-2*chunkAlign, ds.freeBytes())

	// freeing both merges back into a single extent
	ds.dealloc(a, chunkAlign)
	ds.dealloc(b, chunkAlign)
	assert.Equal(t, before, ds.freeBytes())
	assert.Len(t, ds.free, 1)
}

func testSpaceManager(numDevs int) *spaceManager {
	sm := newSpaceManager()
	for i := 1; i <= numDevs; i++ {
		sm.addDevice(btrfsvol.DeviceID(i), btrfsprim.NewUUID(), testDevSize)
	}
	return sm
}

func TestAllocChunkSingle(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_SYSTEM, systemGroupSize)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.AddrDelta(systemGroupSize), chunk.size)
	assert.Equal(t, chunk.size, chunk.stripeSize)
	require.Len(t, chunk.stripes, 1)
	assert.Equal(t, btrfsvol.DeviceID(1), chunk.stripes[0].DevID)

	// logical addresses advance contiguously
	chunk2, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_METADATA, 8*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, chunk.laddr.Add(chunk.size), chunk2.laddr)
}

func TestAllocChunkDup(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_METADATA|btrfsvol.BLOCK_GROUP_DUP, 8*1024*1024)
	require.NoError(t, err)
	require.Len(t, chunk.stripes, 2)
	assert.Equal(t, chunk.stripes[0].DevID, chunk.stripes[1].DevID)
	assert.NotEqual(t, chunk.stripes[0].Paddr, chunk.stripes[1].Paddr)
	// both copies hold the same logical bytes
	assert.Equal(t, btrfsvol.AddrDelta(8*1024*1024), chunk.size)
	assert.Equal(t, chunk.size, chunk.stripeSize)
}

func TestAllocChunkRaid1(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(2)
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_METADATA|btrfsvol.BLOCK_GROUP_RAID1, 8*1024*1024)
	require.NoError(t, err)
	require.Len(t, chunk.stripes, 2)
	assert.NotEqual(t, chunk.stripes[0].DevID, chunk.stripes[1].DevID)
	assert.Equal(t, btrfsvol.AddrDelta(8*1024*1024), chunk.size)
}

func TestAllocChunkHalveRetry(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	// ask for far more than the device holds; the allocator halves
	// until the stripe fits
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_DATA, 4*btrfsvol.AddrDelta(testDevSize))
	require.NoError(t, err)
	assert.Less(t, chunk.size, btrfsvol.AddrDelta(testDevSize))
	assert.GreaterOrEqual(t, chunk.size, btrfsvol.AddrDelta(stripeLen))
}

func TestRemoveChunk(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	free := sm.devs[1].freeBytes()
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_DATA, 8*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, free-chunk.size, sm.devs[1].freeBytes())

	require.NoError(t, sm.removeChunk(chunk.laddr))
	assert.Equal(t, free, sm.devs[1].freeBytes())
	_, ok := sm.chunkAt(chunk.laddr)
	assert.False(t, ok)

	assert.Error(t, sm.removeChunk(chunk.laddr))
}

func TestChunkAt(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	chunk, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_SYSTEM, systemGroupSize)
	require.NoError(t, err)

	got, ok := sm.chunkAt(chunk.laddr.Add(chunk.size - 1))
	require.True(t, ok)
	assert.Same(t, chunk, got)
	_, ok = sm.chunkAt(chunk.laddr.Add(chunk.size))
	assert.False(t, ok)
}

func TestNodeAllocator(t *testing.T) {
	t.Parallel()
	sm := testSpaceManager(1)
	sys, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_SYSTEM, systemGroupSize)
	require.NoError(t, err)

	// no metadata chunk yet: metadata borrows from the system chunk
	na := newNodeAllocator(sm)
	laddr, err := na.alloc(btrfsvol.BLOCK_GROUP_METADATA, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, sys.laddr, laddr)

	meta, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_METADATA, 8*1024*1024)
	require.NoError(t, err)

	// fresh allocator: metadata now lands in the metadata chunk,
	// system blocks still in the system chunk
	na = newNodeAllocator(sm)
	laddr, err = na.alloc(btrfsvol.BLOCK_GROUP_METADATA, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, meta.laddr, laddr)
	laddr, err = na.alloc(btrfsvol.BLOCK_GROUP_METADATA, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, meta.laddr.Add(0x4000), laddr)
	laddr, err = na.alloc(btrfsvol.BLOCK_GROUP_SYSTEM, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, sys.laddr, laddr)

	// a newer metadata chunk wins over the older one
	meta2, err := sm.allocChunk(btrfsvol.BLOCK_GROUP_METADATA, 8*1024*1024)
	require.NoError(t, err)
	na = newNodeAllocator(sm)
	laddr, err = na.alloc(btrfsvol.BLOCK_GROUP_METADATA, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, meta2.laddr, laddr)
}
