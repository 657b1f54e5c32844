// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/fmtutil"
)

type NodeFlags uint64

const (
	NodeWritten = NodeFlags(1 << iota)
	NodeReloc
)

func (NodeFlags) BinaryStaticSize() int { return 7 }
func (f NodeFlags) MarshalBinary() ([]byte, error) {
	var full [8]byte
	binary.LittleEndian.PutUint64(full[:], uint64(f))
	return full[:7], nil
}

func (f *NodeFlags) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 7); err != nil {
		return 0, err
	}
	var full [8]byte
	copy(full[:7], dat[:7])
	*f = NodeFlags(binary.LittleEndian.Uint64(full[:]))
	return 7, nil
}

var (
	_ binstruct.StaticSizer = NodeFlags(0)
	_ binstruct.Marshaler   = NodeFlags(0)
	_ binstruct.Unmarshaler = (*NodeFlags)(nil)
)

var nodeFlagNames = []string{
	"WRITTEN",
	"RELOC",
}

func (f NodeFlags) Has(req NodeFlags) bool { return f&req == req }
func (f NodeFlags) String() string {
	return fmtutil.BitfieldString(f, nodeFlagNames, fmtutil.HexLower)
}

type BackrefRev uint8

const (
	OldBackrefRev = BackrefRev(iota)
	MixedBackrefRev
)

// NodeHeader is the header at the front of every tree block.
type NodeHeader struct {
	Checksum      btrfssum.CSum        `bin:"off=0x0,  siz=0x20"`
	MetadataUUID  btrfsprim.UUID       `bin:"off=0x20, siz=0x10"`
	Addr          btrfsvol.LogicalAddr `bin:"off=0x30, siz=0x8"` // logical address of this node
	Flags         NodeFlags            `bin:"off=0x38, siz=0x7"`
	BackrefRev    BackrefRev           `bin:"off=0x3f, siz=0x1"`
	ChunkTreeUUID btrfsprim.UUID       `bin:"off=0x40, siz=0x10"`
	Generation    btrfsprim.Generation `bin:"off=0x50, siz=0x8"`
	Owner         btrfsprim.ObjID      `bin:"off=0x58, siz=0x8"` // tree that this node belongs to
	NumItems      uint32               `bin:"off=0x60, siz=0x4"` // [ignored-when-writing]
	Level         uint8                `bin:"off=0x64, siz=0x1"` // 0 for leaf nodes, >=1 for interior nodes
	binstruct.End `bin:"off=0x65"`
}

// KeyPointer is what the body of an interior node is an array of.
type KeyPointer struct {
	Key           btrfsprim.Key        `bin:"off=0x0,  siz=0x11"`
	BlockPtr      btrfsvol.LogicalAddr `bin:"off=0x11, siz=0x8"`
	Generation    btrfsprim.Generation `bin:"off=0x19, siz=0x8"`
	binstruct.End `bin:"off=0x21"`
}

// ItemHeader is what the front of the body of a leaf node is an array
// of; the item bodies are packed at the tail of the leaf, in reverse
// order.
type ItemHeader struct {
	Key           btrfsprim.Key `bin:"off=0x0,  siz=0x11"`
	DataOffset    uint32        `bin:"off=0x11, siz=0x4"` // relative to the end of the node header
	DataSize      uint32        `bin:"off=0x15, siz=0x4"`
	binstruct.End `bin:"off=0x19"`
}

// Item is a single key and body in a leaf node.
type Item struct {
	Key  btrfsprim.Key
	Body btrfsitem.Item
}

// Node is an in-memory tree block, either interior or leaf.
type Node struct {
	// These are populated from the node's context, not the node
	// itself.
	Size         uint32            // typically superblock.NodeSize
	ChecksumType btrfssum.CSumType // typically superblock.ChecksumType

	Head NodeHeader

	// BodyInternal is populated iff Head.Level > 0.
	BodyInternal []KeyPointer
	// BodyLeaf is populated iff Head.Level == 0.
	BodyLeaf []Item
}

var ErrNotANode = errors.New("does not look like a node")

func (node Node) CalculateChecksum(dat []byte) (btrfssum.CSum, error) {
	return node.ChecksumType.Sum(dat[binstruct.StaticSize(btrfssum.CSum{}):])
}

// LeafFreeSpace returns how many bytes are left for additional items
// in a leaf.
func (node Node) LeafFreeSpace() uint32 {
	if node.Head.Level > 0 {
		panic(fmt.Errorf("btrfs.Node.LeafFreeSpace: not a leaf node"))
	}
	freeSpace := node.Size
	freeSpace -= uint32(binstruct.StaticSize(NodeHeader{}))
	for _, item := range node.BodyLeaf {
		freeSpace -= uint32(binstruct.StaticSize(ItemHeader{}))
		bs, _ := binstruct.Marshal(item.Body)
		freeSpace -= uint32(len(bs))
	}
	return freeSpace
}

// MaxItems returns the number of key pointers that fit in an interior
// node.
func (node Node) MaxItems() uint32 {
	bodyBytes := node.Size - uint32(binstruct.StaticSize(NodeHeader{}))
	return bodyBytes / uint32(binstruct.StaticSize(KeyPointer{}))
}

func (node Node) MarshalBinary() ([]byte, error) {
	if node.Size == 0 {
		return nil, fmt.Errorf("btrfs.Node.MarshalBinary: .Size must be set")
	}
	if node.Size <= uint32(binstruct.StaticSize(NodeHeader{})) {
		return nil, fmt.Errorf("btrfs.Node.MarshalBinary: .Size must be greater than %v",
			binstruct.StaticSize(NodeHeader{}))
	}
	if node.Head.Level > 0 {
		node.Head.NumItems = uint32(len(node.BodyInternal))
	} else {
		node.Head.NumItems = uint32(len(node.BodyLeaf))
	}

	buf := make([]byte, node.Size)

	bs, err := binstruct.Marshal(node.Head)
	if err != nil {
		return buf, err
	}
	copy(buf, bs)

	if node.Head.Level > 0 {
		n := binstruct.StaticSize(NodeHeader{})
		for i, kp := range node.BodyInternal {
			bs, err := binstruct.Marshal(kp)
			if err != nil {
				return buf, fmt.Errorf("item %v: %w", i, err)
			}
			if n+len(bs) > len(buf) {
				return buf, fmt.Errorf("item %v: node overflow", i)
			}
			copy(buf[n:], bs)
			n += len(bs)
		}
	} else {
		headOff := binstruct.StaticSize(NodeHeader{})
		tailOff := len(buf)
		for i, item := range node.BodyLeaf {
			body, err := binstruct.Marshal(item.Body)
			if err != nil {
				return buf, fmt.Errorf("item %v: %w", i, err)
			}
			tailOff -= len(body)
			if headOff+binstruct.StaticSize(ItemHeader{}) > tailOff {
				return buf, fmt.Errorf("item %v: node overflow", i)
			}
			copy(buf[tailOff:], body)
			itemHdr := ItemHeader{
				Key:        item.Key,
				DataOffset: uint32(tailOff - binstruct.StaticSize(NodeHeader{})),
				DataSize:   uint32(len(body)),
			}
			bs, err := binstruct.Marshal(itemHdr)
			if err != nil {
				return buf, fmt.Errorf("item %v: %w", i, err)
			}
			copy(buf[headOff:], bs)
			headOff += len(bs)
		}
	}

	csum, err := node.CalculateChecksum(buf)
	if err != nil {
		return buf, err
	}
	node.Head.Checksum = csum
	bs, err = binstruct.Marshal(node.Head)
	if err != nil {
		return buf, err
	}
	copy(buf, bs)

	return buf, nil
}

func (node *Node) UnmarshalBinary(dat []byte) (int, error) {
	if node.Size == 0 {
		return 0, fmt.Errorf("btrfs.Node.UnmarshalBinary: .Size must be set")
	}
	if err := binstruct.NeedNBytes(dat, int(node.Size)); err != nil {
		return 0, err
	}
	dat = dat[:node.Size]

	n, err := binstruct.Unmarshal(dat, &node.Head)
	if err != nil {
		return n, err
	}

	stored := node.Head.Checksum
	calced, err := node.CalculateChecksum(dat)
	if err != nil {
		return n, err
	}
	if stored != calced {
		return n, fmt.Errorf("node checksum mismatch: stored=%v calculated=%v", stored, calced)
	}

	if node.Head.Level > 0 {
		node.BodyInternal = make([]KeyPointer, node.Head.NumItems)
		for i := range node.BodyInternal {
			_n, err := binstruct.Unmarshal(dat[n:], &node.BodyInternal[i])
			n += _n
			if err != nil {
				return n, fmt.Errorf("item %v: %w", i, err)
			}
		}
	} else {
		node.BodyLeaf = make([]Item, node.Head.NumItems)
		hdrOff := n
		for i := range node.BodyLeaf {
			var itemHdr ItemHeader
			_n, err := binstruct.Unmarshal(dat[hdrOff:], &itemHdr)
			hdrOff += _n
			if err != nil {
				return hdrOff, fmt.Errorf("item %v: %w", i, err)
			}
			dataOff := binstruct.StaticSize(NodeHeader{}) + int(itemHdr.DataOffset)
			dataEnd := dataOff + int(itemHdr.DataSize)
			if dataOff < hdrOff || dataEnd > len(dat) {
				return hdrOff, fmt.Errorf("item %v: body out of bounds", i)
			}
			node.BodyLeaf[i] = Item{
				Key:  itemHdr.Key,
				Body: btrfsitem.UnmarshalItem(itemHdr.Key, dat[dataOff:dataEnd]),
			}
		}
		n = len(dat)
	}
	return len(dat), nil
}
