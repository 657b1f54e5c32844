// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsitem contains the definitions of all of the item-body
// types that this tool reads or writes.
package btrfsitem

import (
	"fmt"
	"reflect"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
)

type Type = btrfsprim.ItemType

// Item is implemented by all item-body types in this package.
type Item interface {
	isItem()
}

// Error is a pseudo-item that stands in for an item whose body could
// not be parsed.
type Error struct {
	Dat []byte
	Err error
}

func (Error) isItem() {}

func (o Error) MarshalBinary() ([]byte, error) {
	return o.Dat, nil
}

func (o *Error) UnmarshalBinary(dat []byte) (int, error) {
	o.Dat = dat
	return len(dat), nil
}

func (BlockGroup) isItem()    {}
func (Chunk) isItem()         {}
func (Dev) isItem()           {}
func (DevExtent) isItem()     {}
func (DirEntry) isItem()      {}
func (Empty) isItem()         {}
func (Extent) isItem()        {}
func (FreeSpaceInfo) isItem() {}
func (Inode) isItem()         {}
func (InodeRefs) isItem()     {}
func (Metadata) isItem()      {}
func (Root) isItem()          {}
func (UUIDMap) isItem()       {}

var keytype2gotype = map[Type]reflect.Type{
	btrfsprim.BLOCK_GROUP_ITEM_KEY:  reflect.TypeOf(BlockGroup{}),
	btrfsprim.CHUNK_ITEM_KEY:        reflect.TypeOf(Chunk{}),
	btrfsprim.DEV_ITEM_KEY:          reflect.TypeOf(Dev{}),
	btrfsprim.DEV_EXTENT_KEY:        reflect.TypeOf(DevExtent{}),
	btrfsprim.DIR_INDEX_KEY:         reflect.TypeOf(DirEntry{}),
	btrfsprim.DIR_ITEM_KEY:          reflect.TypeOf(DirEntry{}),
	btrfsprim.EXTENT_ITEM_KEY:       reflect.TypeOf(Extent{}),
	btrfsprim.FREE_SPACE_EXTENT_KEY: reflect.TypeOf(Empty{}),
	btrfsprim.FREE_SPACE_INFO_KEY:   reflect.TypeOf(FreeSpaceInfo{}),
	btrfsprim.INODE_ITEM_KEY:        reflect.TypeOf(Inode{}),
	btrfsprim.INODE_REF_KEY:         reflect.TypeOf(InodeRefs{}),
	btrfsprim.METADATA_ITEM_KEY:     reflect.TypeOf(Metadata{}),
	btrfsprim.ORPHAN_ITEM_KEY:       reflect.TypeOf(Empty{}),
	btrfsprim.ROOT_ITEM_KEY:         reflect.TypeOf(Root{}),
	btrfsprim.UUID_SUBVOL_KEY:       reflect.TypeOf(UUIDMap{}),
	btrfsprim.UUID_RECEIVED_SUBVOL_KEY: reflect.TypeOf(UUIDMap{}),
}

// UnmarshalItem parses the body of the item at `key`.  If the body
// cannot be parsed, it returns an Error item rather than an error.
func UnmarshalItem(key btrfsprim.Key, dat []byte) Item {
	gotype, ok := keytype2gotype[key.ItemType]
	if !ok {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): unknown item type", key.ItemType),
		}
	}
	retPtr := reflect.New(gotype)
	n, err := binstruct.Unmarshal(dat, retPtr.Interface())
	if err != nil {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): %w", key.ItemType, err),
		}
	}
	if n < len(dat) {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): left over data: got %v bytes but only consumed %v",
				key.ItemType, len(dat), n),
		}
	}
	return retPtr.Elem().Interface().(Item)
}
