// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
)

// InodeRefs is an INODE_REF: the back-references from an inode to the
// directory entries that name it.  The body is a sequence of one or
// more refs.
//
// key.objectid = inode number of the file
// key.offset   = inode number of the containing directory
type InodeRefs struct { // INODE_REF=12
	Refs []InodeRef
}

func (o *InodeRefs) UnmarshalBinary(dat []byte) (int, error) {
	o.Refs = nil
	var n int
	for n < len(dat) {
		var ref InodeRef
		_n, err := ref.unmarshal(dat[n:])
		n += _n
		if err != nil {
			return n, err
		}
		o.Refs = append(o.Refs, ref)
	}
	return n, nil
}

func (o InodeRefs) MarshalBinary() ([]byte, error) {
	var dat []byte
	for _, ref := range o.Refs {
		bs, err := ref.marshal()
		dat = append(dat, bs...)
		if err != nil {
			return dat, err
		}
	}
	return dat, nil
}

type InodeRef struct {
	Index   int64
	NameLen uint16 // [ignored-when-writing]
	Name    []byte
}

func (o *InodeRef) unmarshal(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0x0a); err != nil {
		return 0, fmt.Errorf("inode ref: %w", err)
	}
	var n int
	_n, err := binstruct.Unmarshal(dat, &o.Index)
	n += _n
	if err != nil {
		return n, err
	}
	_n, err = binstruct.Unmarshal(dat[n:], &o.NameLen)
	n += _n
	if err != nil {
		return n, err
	}
	if err := binstruct.NeedNBytes(dat[n:], int(o.NameLen)); err != nil {
		return n, fmt.Errorf("inode ref: %w", err)
	}
	o.Name = dat[n : n+int(o.NameLen)]
	n += int(o.NameLen)
	return n, nil
}

func (o InodeRef) marshal() ([]byte, error) {
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.Marshal(o.Index)
	if err != nil {
		return dat, err
	}
	bs, err := binstruct.Marshal(o.NameLen)
	dat = append(dat, bs...)
	if err != nil {
		return dat, err
	}
	dat = append(dat, o.Name...)
	return dat, nil
}
