// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
)

func testSysChunk() btrfs.SysChunk {
	return btrfs.SysChunk{
		Key: btrfsprim.Key{
			ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
			ItemType: btrfsprim.CHUNK_ITEM_KEY,
			Offset:   0x1400000,
		},
		Chunk: btrfsitem.Chunk{
			Head: btrfsitem.ChunkHead{
				Size:       0x400000,
				Owner:      btrfsprim.EXTENT_TREE_OBJECTID,
				StripeLen:  0x10000,
				Type:       btrfsvol.BLOCK_GROUP_SYSTEM,
				IOMinSize:  0x1000,
				NumStripes: 1,
			},
			Stripes: []btrfsitem.ChunkStripe{{
				DeviceID:   1,
				Offset:     0x100000,
				DeviceUUID: btrfsprim.UUID{0x42},
			}},
		},
	}
}

func TestSuperblockSysChunkArray(t *testing.T) {
	t.Parallel()
	var sb btrfs.Superblock
	want := []btrfs.SysChunk{testSysChunk()}
	require.NoError(t, sb.SetSysChunkArray(want))
	assert.Equal(t, uint32(0x11+0x30+0x20), sb.SysChunkArraySize)

	got, err := sb.ParseSysChunkArray()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// an over-long claimed size is rejected
	sb.SysChunkArraySize = uint32(len(sb.SysChunkArray)) + 1
	_, err = sb.ParseSysChunkArray()
	assert.Error(t, err)
}

func TestSuperblockChecksum(t *testing.T) {
	t.Parallel()
	sb := btrfs.Superblock{
		FSUUID:       btrfsprim.UUID{0x01},
		Magic:        [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'},
		Generation:   4,
		ChecksumType: btrfssum.TYPE_CRC32,
		SectorSize:   0x1000,
		NodeSize:     0x4000,
	}

	csum, err := sb.CalculateChecksum()
	require.NoError(t, err)
	sb.Checksum = csum
	assert.NoError(t, sb.ValidateChecksum())

	sb.Generation = 5
	assert.Error(t, sb.ValidateChecksum())
}

func TestSuperblockEqual(t *testing.T) {
	t.Parallel()
	var a, b btrfs.Superblock
	a.FSUUID = btrfsprim.UUID{0x01}
	b.FSUUID = btrfsprim.UUID{0x01}

	// mirrors differ only in Self and Checksum
	a.Self = 0x10000
	b.Self = 0x4000000
	a.Checksum = btrfssum.CSum{0x01}
	assert.True(t, a.Equal(b))

	b.Generation = 9
	assert.False(t, a.Equal(b))
}

func TestSuperblockLabelString(t *testing.T) {
	t.Parallel()
	var sb btrfs.Superblock
	assert.Equal(t, "", sb.LabelString())
	copy(sb.Label[:], "scratch")
	assert.Equal(t, "scratch", sb.LabelString())
}

func TestSuperblockEffectiveMetadataUUID(t *testing.T) {
	t.Parallel()
	var sb btrfs.Superblock
	sb.FSUUID = btrfsprim.UUID{0x01}
	sb.MetadataUUID = btrfsprim.UUID{0x02}
	assert.Equal(t, sb.FSUUID, sb.EffectiveMetadataUUID())
	sb.IncompatFlags |= btrfs.FeatureIncompatMetadataUUID
	assert.Equal(t, sb.MetadataUUID, sb.EffectiveMetadataUUID())
}
