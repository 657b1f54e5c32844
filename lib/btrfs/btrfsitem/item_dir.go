// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"
	"hash/crc32"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
)

// NameHash is the hash that a DirEntry's key.offset is set to for
// DIR_ITEM entries: crc32c seeded with ^1.
func NameHash(dat []byte) uint32 {
	return ^crc32.Update(1, crc32.MakeTable(crc32.Castagnoli), dat)
}

// DirEntry is a DIR_ITEM or DIR_INDEX.
//
// key.objectid = inode of the directory containing this entry
// key.offset   = for DIR_ITEM: NameHash of the name
//                for DIR_INDEX: index of this entry within the directory
type DirEntry struct { // DIR_ITEM=84 DIR_INDEX=96
	Location      btrfsprim.Key        `bin:"off=0x0, siz=0x11"`
	TransID       btrfsprim.Generation `bin:"off=0x11, siz=8"`
	DataLen       uint16               `bin:"off=0x19, siz=2"` // [ignored-when-writing]
	NameLen       uint16               `bin:"off=0x1b, siz=2"` // [ignored-when-writing]
	Type          FileType             `bin:"off=0x1d, siz=1"`
	binstruct.End `bin:"off=0x1e"`
	Data          []byte `bin:"-"`
	Name          []byte `bin:"-"`
}

func (o *DirEntry) UnmarshalBinary(dat []byte) (int, error) {
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if err := binstruct.NeedNBytes(dat[n:], int(o.NameLen)+int(o.DataLen)); err != nil {
		return n, fmt.Errorf("dir entry: %w", err)
	}
	o.Name = dat[n : n+int(o.NameLen)]
	n += int(o.NameLen)
	o.Data = dat[n : n+int(o.DataLen)]
	n += int(o.DataLen)
	return n, nil
}

func (o DirEntry) MarshalBinary() ([]byte, error) {
	o.DataLen = uint16(len(o.Data))
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	dat = append(dat, o.Name...)
	dat = append(dat, o.Data...)
	return dat, nil
}

type FileType uint8

const (
	FT_UNKNOWN = FileType(iota)
	FT_REG_FILE
	FT_DIR
	FT_CHRDEV
	FT_BLKDEV
	FT_FIFO
	FT_SOCK
	FT_SYMLINK
	FT_XATTR

	FT_MAX
)

var fileTypeNames = map[FileType]string{
	FT_UNKNOWN:  "UNKNOWN",
	FT_REG_FILE: "FILE",
	FT_DIR:      "DIR",
	FT_CHRDEV:   "CHRDEV",
	FT_BLKDEV:   "BLKDEV",
	FT_FIFO:     "FIFO",
	FT_SOCK:     "SOCK",
	FT_SYMLINK:  "SYMLINK",
	FT_XATTR:    "XATTR",
}

func (ft FileType) String() string {
	name, ok := fileTypeNames[ft]
	if !ok {
		return fmt.Sprintf("FT_UNDEFINED(%d)", uint8(ft))
	}
	return name
}

var _ fmt.Stringer = FileType(0)
