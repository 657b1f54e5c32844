// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsitem"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsprim"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/diskio"
)

// A commit re-serializes every tree from its in-memory items,
// deriving the bookkeeping trees (extent, free-space, block-group,
// chunk, device, root) along the way, and then writes the whole new
// generation to disk followed by fresh superblocks.
//
// The extent and free-space items describe the very tree blocks that
// hold them, so their contents depend on the serialization and vice
// versa.  The knot is cut by iterating: each trial serialization
// derives those items from the block set produced by the previous
// trial, starting from the block set of the previous commit, until
// the block set stops changing.  Every trial allocates from the same
// starting state in the same order, so a stable block set means a
// self-consistent image.
const maxCommitTrials = 8

// maxInlineItemSize guards against an item body that could never fit
// in a leaf.
func (fs *FS) maxInlineItemSize() int {
	return int(fs.cfg.NodeSize) -
		binstruct.StaticSize(btrfs.NodeHeader{}) -
		binstruct.StaticSize(btrfs.ItemHeader{})
}

type trialRoot struct {
	addr      btrfsvol.LogicalAddr
	level     uint8
	bytesUsed int64
}

type trialBlock struct {
	laddr btrfsvol.LogicalAddr
	node  *btrfs.Node
}

type trial struct {
	fs       *FS
	na       *nodeAllocator
	prevLive map[btrfsvol.LogicalAddr]liveBlock

	live   map[btrfsvol.LogicalAddr]liveBlock
	blocks []trialBlock
	roots  map[treeKey]trialRoot
}

// commit writes out a new generation of the filesystem.
func (fs *FS) commit(ctx context.Context) error {
	fs.gen++
	dlog.Debugf(ctx, "committing generation %v", fs.gen)

	prev := fs.lastLive
	var tr *trial
	for i := 0; ; i++ {
		if i == maxCommitTrials {
			return fmt.Errorf("commit: tree serialization did not reach a fixpoint after %v rounds",
				maxCommitTrials)
		}
		tr = &trial{
			fs:       fs,
			na:       newNodeAllocator(fs.space),
			prevLive: prev,
			live:     make(map[btrfsvol.LogicalAddr]liveBlock),
			roots:    make(map[treeKey]trialRoot),
		}
		if err := tr.run(); err != nil {
			return err
		}
		if liveEqual(tr.live, prev) {
			break
		}
		prev = tr.live
	}

	for _, blk := range tr.blocks {
		dat, err := blk.node.MarshalBinary()
		if err != nil {
			return fmt.Errorf("commit: node@%v: %w", blk.laddr, err)
		}
		if err := fs.writeLogical(dat, blk.laddr); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	for key, t := range fs.trees {
		root := tr.roots[key]
		t.root = root.addr
		t.level = root.level
		t.bytesUsed = root.bytesUsed
	}
	fs.lastLive = tr.live

	return fs.writeSuperblocks(ctx)
}

func liveEqual(a, b map[btrfsvol.LogicalAddr]liveBlock) bool {
	if len(a) != len(b) {
		return false
	}
	for laddr, blk := range a {
		if other, ok := b[laddr]; !ok || other != blk {
			return false
		}
	}
	return true
}

func (tr *trial) run() error {
	derived, err := tr.deriveItems()
	if err != nil {
		return err
	}
	for _, t := range tr.fs.treeOrder() {
		items, err := mergeItems(t.items, derived[t.key])
		if err != nil {
			return fmt.Errorf("tree %v: %w", t.key.ID, err)
		}
		if t.key.ID == btrfsprim.ROOT_TREE_OBJECTID {
			rootItems, err := tr.rootItems()
			if err != nil {
				return err
			}
			items, err = mergeItems(items, rootItems)
			if err != nil {
				return fmt.Errorf("tree %v: %w", t.key.ID, err)
			}
		}
		root, err := tr.serializeTree(t, items)
		if err != nil {
			return fmt.Errorf("tree %v: %w", t.key.ID, err)
		}
		tr.roots[t.key] = root
	}
	return nil
}

// usedPerChunk sums the previous trial's live blocks per chunk.
func (tr *trial) usedPerChunk() map[btrfsvol.LogicalAddr]int64 {
	ret := make(map[btrfsvol.LogicalAddr]int64)
	for laddr, blk := range tr.prevLive {
		if chunk, ok := tr.fs.space.chunkAt(laddr); ok {
			ret[chunk.laddr] += int64(blk.Size)
		}
	}
	return ret
}

// deriveItems computes, from the previous trial's block set and the
// chunk records, the contents of every bookkeeping tree.
func (tr *trial) deriveItems() (map[treeKey][]btrfs.Item, error) {
	fs := tr.fs
	ret := make(map[treeKey][]btrfs.Item)
	used := tr.usedPerChunk()

	// chunk tree: device items then chunk items
	var chunkItems []btrfs.Item
	for _, pd := range fs.attached {
		chunkItems = append(chunkItems, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.DEV_ITEMS_OBJECTID,
				ItemType: btrfsprim.DEV_ITEM_KEY,
				Offset:   uint64(pd.id),
			},
			Body: fs.devItem(pd),
		})
	}
	for _, chunk := range fs.space.chunks {
		item := btrfsitem.Chunk{
			Head: btrfsitem.ChunkHead{
				Size:           chunk.size,
				Owner:          btrfsprim.EXTENT_TREE_OBJECTID,
				StripeLen:      stripeLen,
				Type:           chunk.flags,
				IOOptimalAlign: fs.cfg.SectorSize,
				IOOptimalWidth: fs.cfg.SectorSize,
				IOMinSize:      fs.cfg.SectorSize,
				SubStripes:     uint16(chunk.subStripes),
			},
		}
		for _, stripe := range chunk.stripes {
			item.Stripes = append(item.Stripes, btrfsitem.ChunkStripe{
				DeviceID:   stripe.DevID,
				Offset:     stripe.Paddr,
				DeviceUUID: fs.space.devs[stripe.DevID].uuid,
			})
		}
		chunkItems = append(chunkItems, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
				ItemType: btrfsprim.CHUNK_ITEM_KEY,
				Offset:   uint64(chunk.laddr),
			},
			Body: item,
		})
	}
	ret[treeKey{ID: btrfsprim.CHUNK_TREE_OBJECTID}] = chunkItems

	// device tree: one extent per stripe
	var devItems []btrfs.Item
	for _, chunk := range fs.space.chunks {
		for _, stripe := range chunk.stripes {
			devItems = append(devItems, btrfs.Item{
				Key: btrfsprim.Key{
					ObjectID: btrfsprim.ObjID(stripe.DevID),
					ItemType: btrfsprim.DEV_EXTENT_KEY,
					Offset:   uint64(stripe.Paddr),
				},
				Body: btrfsitem.DevExtent{
					ChunkTree:     btrfsprim.CHUNK_TREE_OBJECTID,
					ChunkObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
					ChunkOffset:   chunk.laddr,
					Length:        chunk.stripeSize,
					ChunkTreeUUID: fs.chunkTreeUUID,
				},
			})
		}
	}
	sort.Slice(devItems, func(i, j int) bool {
		return devItems[i].Key.Compare(devItems[j].Key) < 0
	})
	ret[treeKey{ID: btrfsprim.DEV_TREE_OBJECTID}] = devItems

	// extent tree (shard 0): one skinny metadata item per live
	// tree block
	var extentItems []btrfs.Item
	for _, laddr := range sortedLiveAddrs(tr.prevLive) {
		blk := tr.prevLive[laddr]
		extentItems = append(extentItems, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.ObjID(laddr),
				ItemType: btrfsprim.METADATA_ITEM_KEY,
				Offset:   uint64(blk.Level),
			},
			Body: btrfsitem.Metadata{
				Head: btrfsitem.ExtentHeader{
					Refs:       1,
					Generation: blk.Gen,
					Flags:      btrfsitem.EXTENT_FLAG_TREE_BLOCK,
				},
				Refs: []btrfsitem.ExtentInlineRef{{
					Type:   btrfsprim.TREE_BLOCK_REF_KEY,
					Offset: uint64(blk.Owner),
				}},
			},
		})
	}

	// block-group items: in the block-group tree when that feature
	// is on, else interleaved into the extent tree
	var bgItems []btrfs.Item
	for _, chunk := range fs.space.chunks {
		bgItems = append(bgItems, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.ObjID(chunk.laddr),
				ItemType: btrfsprim.BLOCK_GROUP_ITEM_KEY,
				Offset:   uint64(chunk.size),
			},
			Body: btrfsitem.BlockGroup{
				Used:          used[chunk.laddr],
				ChunkObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
				Flags:         chunk.flags,
			},
		})
	}
	if fs.cfg.RuntimeFeatures.Has(btrfs.FeatureCompatROBlockGroupTree) {
		ret[treeKey{ID: btrfsprim.BLOCK_GROUP_TREE_OBJECTID}] = bgItems
	} else {
		var err error
		extentItems, err = mergeItems(extentItems, bgItems)
		if err != nil {
			return nil, fmt.Errorf("extent tree: %w", err)
		}
	}
	ret[treeKey{ID: btrfsprim.EXTENT_TREE_OBJECTID}] = extentItems

	// free-space tree (shard 0): per block group, an info item and
	// the free extents
	var fstItems []btrfs.Item
	for _, chunk := range fs.space.chunks {
		gaps := tr.freeGaps(chunk)
		fstItems = append(fstItems, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.ObjID(chunk.laddr),
				ItemType: btrfsprim.FREE_SPACE_INFO_KEY,
				Offset:   uint64(chunk.size),
			},
			Body: btrfsitem.FreeSpaceInfo{
				ExtentCount: int32(len(gaps)),
			},
		})
		for _, gap := range gaps {
			fstItems = append(fstItems, btrfs.Item{
				Key: btrfsprim.Key{
					ObjectID: btrfsprim.ObjID(gap.laddr),
					ItemType: btrfsprim.FREE_SPACE_EXTENT_KEY,
					Offset:   uint64(gap.size),
				},
				Body: btrfsitem.Empty{},
			})
		}
	}
	ret[treeKey{ID: btrfsprim.FREE_SPACE_TREE_OBJECTID}] = fstItems

	return ret, nil
}

type freeGap struct {
	laddr btrfsvol.LogicalAddr
	size  btrfsvol.AddrDelta
}

// freeGaps returns the unused ranges of a chunk, per the previous
// trial's block set.
func (tr *trial) freeGaps(chunk *chunkRecord) []freeGap {
	var usedAddrs []btrfsvol.LogicalAddr
	for _, laddr := range sortedLiveAddrs(tr.prevLive) {
		if chunk.laddr <= laddr && laddr < chunk.laddr.Add(chunk.size) {
			usedAddrs = append(usedAddrs, laddr)
		}
	}
	var ret []freeGap
	cursor := chunk.laddr
	for _, laddr := range usedAddrs {
		if laddr > cursor {
			ret = append(ret, freeGap{laddr: cursor, size: laddr.Sub(cursor)})
		}
		cursor = laddr.Add(btrfsvol.AddrDelta(tr.prevLive[laddr].Size))
	}
	if end := chunk.laddr.Add(chunk.size); end > cursor {
		ret = append(ret, freeGap{laddr: cursor, size: end.Sub(cursor)})
	}
	return ret
}

func sortedLiveAddrs(live map[btrfsvol.LogicalAddr]liveBlock) []btrfsvol.LogicalAddr {
	ret := make([]btrfsvol.LogicalAddr, 0, len(live))
	for laddr := range live {
		ret = append(ret, laddr)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// rootItems builds the ROOT_ITEMs recording every tree that is not
// rooted in the superblock.  The recorded trees are serialized before
// the root tree, so their roots for this trial are already known.
func (tr *trial) rootItems() ([]btrfs.Item, error) {
	fs := tr.fs
	var ret []btrfs.Item
	for _, t := range fs.treeOrder() {
		switch t.key.ID {
		case btrfsprim.ROOT_TREE_OBJECTID,
			btrfsprim.CHUNK_TREE_OBJECTID,
			btrfsprim.BLOCK_GROUP_TREE_OBJECTID,
			btrfsprim.REMAP_TREE_OBJECTID:
			continue
		}
		root, ok := tr.roots[t.key]
		if !ok {
			return nil, fmt.Errorf("tree %v: serialized after the root tree", t.key.ID)
		}
		item := btrfsitem.Root{
			Generation:   fs.gen,
			RootDirID:    t.rootDirID,
			ByteNr:       root.addr,
			BytesUsed:    root.bytesUsed,
			Refs:         1,
			Level:        root.level,
			GenerationV2: fs.gen,
			UUID:         t.uuid,
			Flags:        t.flags,
			GlobalTreeID: btrfsprim.ObjID(t.key.GlobalID),
		}
		item.Inode = btrfsitem.Inode{
			Generation: 1,
			Size:       3,
			NLink:      1,
			Mode:       btrfsitem.ModeFmtDir | 0o755,
		}
		ret = append(ret, btrfs.Item{
			Key: btrfsprim.Key{
				ObjectID: t.key.ID,
				ItemType: btrfsprim.ROOT_ITEM_KEY,
				Offset:   t.key.GlobalID,
			},
			Body: item,
		})
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key.Compare(ret[j].Key) < 0
	})
	return ret, nil
}

// serializeTree packs items into leaves and builds the interior
// levels, allocating every block for this trial.
func (tr *trial) serializeTree(t *tree, items []btrfs.Item) (trialRoot, error) {
	fs := tr.fs
	allocType := nodeAllocType(t.key.ID)
	nodeSize := fs.cfg.NodeSize
	headerSize := uint32(binstruct.StaticSize(btrfs.NodeHeader{}))
	itemHeaderSize := uint32(binstruct.StaticSize(btrfs.ItemHeader{}))
	kpSize := uint32(binstruct.StaticSize(btrfs.KeyPointer{}))

	newNode := func(level uint8) *btrfs.Node {
		return &btrfs.Node{
			Size:         nodeSize,
			ChecksumType: fs.cfg.ChecksumType,
			Head: btrfs.NodeHeader{
				MetadataUUID:  fs.fsUUID,
				Flags:         btrfs.NodeWritten,
				BackrefRev:    btrfs.MixedBackrefRev,
				ChunkTreeUUID: fs.chunkTreeUUID,
				Generation:    fs.gen,
				Owner:         t.key.ID,
				Level:         level,
			},
		}
	}
	finishNode := func(node *btrfs.Node) (btrfsvol.LogicalAddr, error) {
		laddr, err := tr.na.alloc(allocType, nodeSize)
		if err != nil {
			return 0, err
		}
		node.Head.Addr = laddr
		tr.blocks = append(tr.blocks, trialBlock{laddr: laddr, node: node})
		tr.live[laddr] = liveBlock{
			Size:  nodeSize,
			Owner: t.key.ID,
			Level: node.Head.Level,
			Gen:   fs.gen,
		}
		return laddr, nil
	}

	// level 0
	var kps []btrfs.KeyPointer
	leaf := newNode(0)
	leafUsed := headerSize
	flush := func() error {
		laddr, err := finishNode(leaf)
		if err != nil {
			return err
		}
		var firstKey btrfsprim.Key
		if len(leaf.BodyLeaf) > 0 {
			firstKey = leaf.BodyLeaf[0].Key
		}
		kps = append(kps, btrfs.KeyPointer{
			Key:        firstKey,
			BlockPtr:   laddr,
			Generation: fs.gen,
		})
		return nil
	}
	for _, item := range items {
		body, err := binstruct.Marshal(item.Body)
		if err != nil {
			return trialRoot{}, fmt.Errorf("item %v: %w", item.Key, err)
		}
		itemSize := itemHeaderSize + uint32(len(body))
		if len(body) > fs.maxInlineItemSize() {
			return trialRoot{}, fmt.Errorf("item %v: body of %v bytes can never fit in a leaf", item.Key, len(body))
		}
		if leafUsed+itemSize > nodeSize {
			if err := flush(); err != nil {
				return trialRoot{}, err
			}
			leaf = newNode(0)
			leafUsed = headerSize
		}
		leaf.BodyLeaf = append(leaf.BodyLeaf, item)
		leafUsed += itemSize
	}
	if len(leaf.BodyLeaf) > 0 || len(kps) == 0 {
		if err := flush(); err != nil {
			return trialRoot{}, err
		}
	}

	// interior levels
	level := uint8(0)
	for len(kps) > 1 {
		level++
		if level > 8 {
			return trialRoot{}, fmt.Errorf("tree is implausibly deep")
		}
		perNode := (nodeSize - headerSize) / kpSize
		var next []btrfs.KeyPointer
		for start := 0; start < len(kps); start += int(perNode) {
			end := start + int(perNode)
			if end > len(kps) {
				end = len(kps)
			}
			node := newNode(level)
			node.BodyInternal = append(node.BodyInternal, kps[start:end]...)
			laddr, err := finishNode(node)
			if err != nil {
				return trialRoot{}, err
			}
			next = append(next, btrfs.KeyPointer{
				Key:        kps[start].Key,
				BlockPtr:   laddr,
				Generation: fs.gen,
			})
		}
		kps = next
	}

	var bytesUsed int64
	for _, blk := range tr.live {
		if blk.Owner == t.key.ID {
			bytesUsed += int64(blk.Size)
		}
	}
	return trialRoot{
		addr:      kps[0].BlockPtr,
		level:     level,
		bytesUsed: bytesUsed,
	}, nil
}

// mergeItems merges two key-sorted item lists.
func mergeItems(a, b []btrfs.Item) ([]btrfs.Item, error) {
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	ret := make([]btrfs.Item, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch d := a[i].Key.Compare(b[j].Key); {
		case d < 0:
			ret = append(ret, a[i])
			i++
		case d > 0:
			ret = append(ret, b[j])
			j++
		default:
			return nil, fmt.Errorf("duplicate item key %v", a[i].Key)
		}
	}
	ret = append(ret, a[i:]...)
	ret = append(ret, b[j:]...)
	return ret, nil
}

// writeLogical writes dat to every physical location backing laddr.
func (fs *FS) writeLogical(dat []byte, laddr btrfsvol.LogicalAddr) error {
	chunk, ok := fs.space.chunkAt(laddr)
	if !ok {
		return fmt.Errorf("write@%v: address is not mapped", laddr)
	}
	locs, err := chunk.layout().Resolve(laddr.Sub(chunk.laddr))
	if err != nil {
		return fmt.Errorf("write@%v: %w", laddr, err)
	}
	for _, loc := range locs {
		pd, ok := fs.deviceByID(loc.Dev)
		if !ok {
			return fmt.Errorf("write@%v: no device with ID %v", laddr, loc.Dev)
		}
		if err := diskio.WriteAll[btrfsvol.PhysicalAddr](pd.dev, dat, loc.Addr); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) deviceByID(id btrfsvol.DeviceID) (*preparedDevice, bool) {
	for _, pd := range fs.attached {
		if pd.id == id {
			return pd, true
		}
	}
	return nil, false
}

func (fs *FS) devItem(pd *preparedDevice) btrfsitem.Dev {
	var usedBytes uint64
	for _, chunk := range fs.space.chunks {
		for _, stripe := range chunk.stripes {
			if stripe.DevID == pd.id {
				usedBytes += uint64(chunk.stripeSize)
			}
		}
	}
	return btrfsitem.Dev{
		DevID:          pd.id,
		NumBytes:       uint64(pd.size),
		NumBytesUsed:   usedBytes,
		IOOptimalAlign: fs.cfg.SectorSize,
		IOOptimalWidth: fs.cfg.SectorSize,
		IOMinSize:      fs.cfg.SectorSize,
		DevUUID:        pd.uuid,
		FSUUID:         fs.fsUUID,
	}
}

// writeSuperblocks writes the superblock (and its mirrors) to every
// attached device.
func (fs *FS) writeSuperblocks(ctx context.Context) error {
	var bytesUsed uint64
	for _, blk := range fs.lastLive {
		bytesUsed += uint64(blk.Size)
	}

	rootTree := fs.simpleTree(btrfsprim.ROOT_TREE_OBJECTID)
	chunkTree := fs.simpleTree(btrfsprim.CHUNK_TREE_OBJECTID)

	sb := btrfs.Superblock{
		FSUUID:     fs.fsUUID,
		Flags:      0x1,
		Magic:      btrfs.Magic,
		Generation: fs.gen,

		RootTree:  rootTree.root,
		ChunkTree: chunkTree.root,

		TotalBytes:      fs.space.totalBytes(),
		BytesUsed:       bytesUsed,
		RootDirObjectID: btrfsprim.ROOT_TREE_DIR_OBJECTID,
		NumDevices:      uint64(len(fs.attached)),

		SectorSize:          fs.cfg.SectorSize,
		NodeSize:            fs.cfg.NodeSize,
		LeafSize:            fs.cfg.NodeSize,
		StripeSize:          fs.cfg.SectorSize,
		ChunkRootGeneration: fs.gen,
		CompatROFlags:       fs.cfg.RuntimeFeatures,
		IncompatFlags:       fs.cfg.Features,
		ChecksumType:        fs.cfg.ChecksumType,

		RootLevel:  rootTree.level,
		ChunkLevel: chunkTree.level,
	}
	copy(sb.Label[:], fs.cfg.Label)
	sb.NumGlobalRoots = uint64(fs.cfg.NumGlobalRoots)
	if fs.hasTree(treeKey{ID: btrfsprim.UUID_TREE_OBJECTID}) {
		sb.UUIDTreeGeneration = fs.gen
	}

	if fs.cfg.RuntimeFeatures.Has(btrfs.FeatureCompatROBlockGroupTree) {
		bgTree := fs.simpleTree(btrfsprim.BLOCK_GROUP_TREE_OBJECTID)
		sb.BlockGroupRoot = bgTree.root
		sb.BlockGroupRootGeneration = fs.gen
		sb.BlockGroupRootLevel = bgTree.level
	}
	if fs.cfg.Features.Has(btrfs.FeatureIncompatRemapTree) {
		if remapTree, ok := fs.trees[treeKey{ID: btrfsprim.REMAP_TREE_OBJECTID}]; ok {
			sb.RemapRoot = remapTree.root
			sb.RemapRootGeneration = fs.gen
			sb.RemapRootLevel = remapTree.level
		}
	}

	var sysChunks []btrfs.SysChunk
	for _, chunk := range fs.space.chunks {
		if !chunk.flags.Has(btrfsvol.BLOCK_GROUP_SYSTEM) {
			continue
		}
		item := btrfsitem.Chunk{
			Head: btrfsitem.ChunkHead{
				Size:           chunk.size,
				Owner:          btrfsprim.EXTENT_TREE_OBJECTID,
				StripeLen:      stripeLen,
				Type:           chunk.flags,
				IOOptimalAlign: fs.cfg.SectorSize,
				IOOptimalWidth: fs.cfg.SectorSize,
				IOMinSize:      fs.cfg.SectorSize,
				SubStripes:     uint16(chunk.subStripes),
			},
		}
		for _, stripe := range chunk.stripes {
			item.Stripes = append(item.Stripes, btrfsitem.ChunkStripe{
				DeviceID:   stripe.DevID,
				Offset:     stripe.Paddr,
				DeviceUUID: fs.space.devs[stripe.DevID].uuid,
			})
		}
		sysChunks = append(sysChunks, btrfs.SysChunk{
			Key: btrfsprim.Key{
				ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
				ItemType: btrfsprim.CHUNK_ITEM_KEY,
				Offset:   uint64(chunk.laddr),
			},
			Chunk: item,
		})
	}
	if err := sb.SetSysChunkArray(sysChunks); err != nil {
		return err
	}

	backup := btrfs.RootBackup{
		TreeRoot:      rootTree.root,
		TreeRootGen:   fs.gen,
		TreeRootLevel: rootTree.level,

		ChunkRoot:      chunkTree.root,
		ChunkRootGen:   fs.gen,
		ChunkRootLevel: chunkTree.level,

		TotalBytes: sb.TotalBytes,
		BytesUsed:  sb.BytesUsed,
		NumDevices: sb.NumDevices,
	}
	fs.sb.SuperRoots[int(fs.gen)%len(sb.SuperRoots)] = backup
	sb.SuperRoots = fs.sb.SuperRoots

	for _, pd := range fs.attached {
		sb.DevItem = fs.devItem(pd)
		for _, addr := range pd.dev.SuperblockAddrs() {
			sb.Self = addr
			csum, err := sb.CalculateChecksum()
			if err != nil {
				return err
			}
			sb.Checksum = csum
			dat, err := binstruct.Marshal(sb)
			if err != nil {
				return err
			}
			if err := diskio.WriteAll[btrfsvol.PhysicalAddr](pd.dev, dat, addr); err != nil {
				return err
			}
		}
	}

	fs.sb = sb
	dlog.Debugf(ctx, "generation %v on disk: %v tree blocks, %v bytes used",
		fs.gen, len(fs.lastLive), bytesUsed)
	return nil
}
