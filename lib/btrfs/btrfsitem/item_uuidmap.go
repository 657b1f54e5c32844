// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
)

// UUIDMap is a UUID_SUBVOL or UUID_RECEIVED_SUBVOL: the UUID tree's
// index from a subvolume UUID to the subvolume's tree ID.  The body is
// a list of tree IDs, since hash collisions on the split UUID key are
// possible.
//
// key.objectid = first half of the UUID
// key.offset   = second half of the UUID
type UUIDMap struct { // UUID_SUBVOL=251 UUID_RECEIVED_SUBVOL=252
	ObjIDs []btrfsprim.ObjID
}

func (o *UUIDMap) UnmarshalBinary(dat []byte) (int, error) {
	o.ObjIDs = nil
	var n int
	for n < len(dat) {
		var objID btrfsprim.ObjID
		_n, err := binstruct.Unmarshal(dat[n:], &objID)
		n += _n
		if err != nil {
			return n, err
		}
		o.ObjIDs = append(o.ObjIDs, objID)
	}
	return n, nil
}

func (o UUIDMap) MarshalBinary() ([]byte, error) {
	var dat []byte
	for _, objID := range o.ObjIDs {
		bs, err := binstruct.Marshal(objID)
		dat = append(dat, bs...)
		if err != nil {
			return dat, err
		}
	}
	return dat, nil
}

// KeyForUUID splits a subvolume UUID into the (objectid, offset) pair
// that the UUID tree indexes it under.
func KeyForUUID(uuid btrfsprim.UUID, itemType btrfsprim.ItemType) btrfsprim.Key {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi |= uint64(uuid[i]) << (8 * i)
		lo |= uint64(uuid[8+i]) << (8 * i)
	}
	return btrfsprim.Key{
		ObjectID: btrfsprim.ObjID(hi),
		ItemType: itemType,
		Offset:   lo,
	}
}
