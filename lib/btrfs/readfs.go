// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"errors"
	"fmt"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/diskio"
)

// FS is a read-only view of an existing filesystem, for verifying and
// inspecting what was written.
type FS struct {
	devices map[btrfsvol.DeviceID]*Device
	sb      *Superblock

	chunks    []chunkMapping
	nodeCache *lru.Cache
}

type chunkMapping struct {
	Laddr  btrfsvol.LogicalAddr
	Layout btrfsvol.ChunkLayout
}

const nodeCacheSize = 128

// OpenFS opens the given device files read-only and assembles them
// into a filesystem view.
func OpenFS(filenames ...string) (*FS, error) {
	fs := &FS{
		devices: make(map[btrfsvol.DeviceID]*Device),
	}
	nodeCache, err := lru.New(nodeCacheSize)
	if err != nil {
		panic(err)
	}
	fs.nodeCache = nodeCache

	for _, filename := range filenames {
		osFile, err := os.Open(filename)
		if err != nil {
			fs.Close()
			return nil, err
		}
		dev := &Device{File: &diskio.OSFile[btrfsvol.PhysicalAddr]{File: osFile}}
		if err := fs.AddDevice(dev); err != nil {
			fs.Close()
			return nil, err
		}
	}
	if err := fs.initChunks(); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

// AddDevice adds an opened device to the filesystem view.
func (fs *FS) AddDevice(dev *Device) error {
	sb, err := dev.Superblock()
	if err != nil {
		return err
	}
	if fs.sb == nil {
		fs.sb = sb
	} else {
		if sb.FSUUID != fs.sb.FSUUID {
			return fmt.Errorf("device %q: FS UUID %v does not match %v",
				dev.Name(), sb.FSUUID, fs.sb.FSUUID)
		}
		if sb.Generation > fs.sb.Generation {
			fs.sb = sb
		}
	}
	devID := sb.DevItem.DevID
	if _, dup := fs.devices[devID]; dup {
		return fmt.Errorf("device %q: duplicate device ID %v", dev.Name(), devID)
	}
	fs.devices[devID] = dev
	return nil
}

func (fs *FS) Close() error {
	var errs []error
	for _, dev := range fs.devices {
		if err := dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (fs *FS) Superblock() (*Superblock, error) {
	if fs.sb == nil {
		return nil, errors.New("no devices")
	}
	return fs.sb, nil
}

func (fs *FS) addChunk(laddr btrfsvol.LogicalAddr, chunk btrfsitem.Chunk) {
	for _, existing := range fs.chunks {
		if existing.Laddr == laddr {
			return
		}
	}
	layout := btrfsvol.ChunkLayout{
		Size:       chunk.Head.Size,
		StripeLen:  chunk.Head.StripeLen,
		Type:       chunk.Head.Type,
		SubStripes: int(chunk.Head.SubStripes),
	}
	for _, stripe := range chunk.Stripes {
		layout.Stripes = append(layout.Stripes, btrfsvol.QualifiedPhysicalAddr{
			Dev:  stripe.DeviceID,
			Addr: stripe.Offset,
		})
	}
	fs.chunks = append(fs.chunks, chunkMapping{Laddr: laddr, Layout: layout})
	sort.Slice(fs.chunks, func(i, j int) bool {
		return fs.chunks[i].Laddr < fs.chunks[j].Laddr
	})
}

// initChunks bootstraps the logical address space from the
// superblock's sys_chunk_array, then fills it in from the chunk tree.
func (fs *FS) initChunks() error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	sysChunks, err := sb.ParseSysChunkArray()
	if err != nil {
		return err
	}
	for _, pair := range sysChunks {
		fs.addChunk(btrfsvol.LogicalAddr(pair.Key.Offset), pair.Chunk)
	}
	return fs.walkNode(sb.ChunkTree, func(item Item) error {
		if chunk, ok := item.Body.(btrfsitem.Chunk); ok {
			fs.addChunk(btrfsvol.LogicalAddr(item.Key.Offset), chunk)
		}
		return nil
	})
}

// Resolve maps a logical address to every physical location that
// holds it.
func (fs *FS) Resolve(laddr btrfsvol.LogicalAddr) ([]btrfsvol.QualifiedPhysicalAddr, error) {
	i := sort.Search(len(fs.chunks), func(i int) bool {
		chunk := fs.chunks[i]
		return laddr < chunk.Laddr.Add(chunk.Layout.Size)
	})
	if i >= len(fs.chunks) || laddr < fs.chunks[i].Laddr {
		return nil, fmt.Errorf("logical address %v is not mapped", laddr)
	}
	chunk := fs.chunks[i]
	return chunk.Layout.Resolve(laddr.Sub(chunk.Laddr))
}

// ReadAt reads logical bytes, from the first stripe that holds them.
func (fs *FS) ReadAt(dat []byte, laddr btrfsvol.LogicalAddr) error {
	paddrs, err := fs.Resolve(laddr)
	if err != nil {
		return err
	}
	qpa := paddrs[0]
	dev, ok := fs.devices[qpa.Dev]
	if !ok {
		return fmt.Errorf("device ID %v is not present", qpa.Dev)
	}
	return diskio.ReadAll[btrfsvol.PhysicalAddr](dev, dat, qpa.Addr)
}

// ReadNode reads and validates the tree block at laddr.
func (fs *FS) ReadNode(laddr btrfsvol.LogicalAddr) (*Node, error) {
	if cached, ok := fs.nodeCache.Get(laddr); ok {
		return cached.(*Node), nil
	}
	sb, err := fs.Superblock()
	if err != nil {
		return nil, err
	}
	dat := make([]byte, sb.NodeSize)
	if err := fs.ReadAt(dat, laddr); err != nil {
		return nil, err
	}
	node := &Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
	}
	if _, err := node.UnmarshalBinary(dat); err != nil {
		return nil, fmt.Errorf("node@%v: %w", laddr, err)
	}
	if node.Head.Addr != laddr {
		return nil, fmt.Errorf("node@%v: %w: claims to be at %v", laddr, ErrNotANode, node.Head.Addr)
	}
	if node.Head.MetadataUUID != sb.EffectiveMetadataUUID() {
		return nil, fmt.Errorf("node@%v: %w: wrong metadata UUID", laddr, ErrNotANode)
	}
	fs.nodeCache.Add(laddr, node)
	return node, nil
}

// walkNode walks the tree rooted at rootAddr in key order, calling fn
// for each leaf item.
func (fs *FS) walkNode(rootAddr btrfsvol.LogicalAddr, fn func(Item) error) error {
	if rootAddr == 0 {
		return nil
	}
	node, err := fs.ReadNode(rootAddr)
	if err != nil {
		return err
	}
	if node.Head.Level > 0 {
		for _, kp := range node.BodyInternal {
			if err := fs.walkNode(kp.BlockPtr, fn); err != nil {
				return err
			}
		}
		return nil
	}
	for _, item := range node.BodyLeaf {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// TreeRootAddr returns the root node address and level of the given
// tree.
func (fs *FS) TreeRootAddr(treeID btrfsprim.ObjID) (btrfsvol.LogicalAddr, uint8, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, 0, err
	}
	switch treeID {
	case btrfsprim.ROOT_TREE_OBJECTID:
		return sb.RootTree, sb.RootLevel, nil
	case btrfsprim.CHUNK_TREE_OBJECTID:
		return sb.ChunkTree, sb.ChunkLevel, nil
	case btrfsprim.TREE_LOG_OBJECTID:
		return sb.LogTree, sb.LogLevel, nil
	case btrfsprim.BLOCK_GROUP_TREE_OBJECTID:
		if !sb.CompatROFlags.Has(FeatureCompatROBlockGroupTree) {
			return 0, 0, fmt.Errorf("block group tree: not enabled")
		}
		return sb.BlockGroupRoot, sb.BlockGroupRootLevel, nil
	case btrfsprim.REMAP_TREE_OBJECTID:
		if !sb.IncompatFlags.Has(FeatureIncompatRemapTree) {
			return 0, 0, fmt.Errorf("remap tree: not enabled")
		}
		return sb.RemapRoot, sb.RemapRootLevel, nil
	}

	var rootItem *btrfsitem.Root
	err = fs.walkNode(sb.RootTree, func(item Item) error {
		if item.Key.ObjectID == treeID && item.Key.ItemType == btrfsprim.ROOT_ITEM_KEY {
			if body, ok := item.Body.(btrfsitem.Root); ok {
				rootItem = &body
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if rootItem == nil {
		return 0, 0, fmt.Errorf("tree %v: no ROOT_ITEM", treeID)
	}
	return rootItem.ByteNr, rootItem.Level, nil
}

// TreeWalk walks the given tree in key order, calling fn for each
// item.
func (fs *FS) TreeWalk(treeID btrfsprim.ObjID, fn func(Item) error) error {
	rootAddr, _, err := fs.TreeRootAddr(treeID)
	if err != nil {
		return err
	}
	return fs.walkNode(rootAddr, fn)
}

// TreeSearch returns the first item in the tree for which the key
// matches.
func (fs *FS) TreeSearch(treeID btrfsprim.ObjID, match func(btrfsprim.Key) bool) (Item, error) {
	var ret Item
	found := false
	err := fs.TreeWalk(treeID, func(item Item) error {
		if !found && match(item.Key) {
			ret = item
			found = true
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	if !found {
		return Item{}, ErrNoItem
	}
	return ret, nil
}

// TreeLookup returns the item with the exact given key.
func (fs *FS) TreeLookup(treeID btrfsprim.ObjID, key btrfsprim.Key) (Item, error) {
	return fs.TreeSearch(treeID, func(k btrfsprim.Key) bool { return k == key })
}

var ErrNoItem = errors.New("item not found")
