// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"bytes"
	"fmt"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfsvol"
	"github.com/gobtrfs/btrfs-mkfs/lib/diskio"
)

// Device is a single physical device (or image file) that is part of
// (or is becoming part of) a filesystem.
type Device struct {
	File diskio.File[btrfsvol.PhysicalAddr]

	cacheSuperblock *Superblock
}

var _ diskio.File[btrfsvol.PhysicalAddr] = (*Device)(nil)

func (dev *Device) Name() string                { return dev.File.Name() }
func (dev *Device) Size() btrfsvol.PhysicalAddr { return dev.File.Size() }
func (dev *Device) Close() error                { return dev.File.Close() }

func (dev *Device) ReadAt(dat []byte, paddr btrfsvol.PhysicalAddr) (int, error) {
	return dev.File.ReadAt(dat, paddr)
}

func (dev *Device) WriteAt(dat []byte, paddr btrfsvol.PhysicalAddr) (int, error) {
	return dev.File.WriteAt(dat, paddr)
}

var superblockAddrs = []btrfsvol.PhysicalAddr{
	0x00_0001_0000, // 64KiB
	0x00_0400_0000, // 64MiB
	0x40_0000_0000, // 256GiB
}

// SuperblockAddrs returns the physical addresses of the superblock
// mirrors that fit on this device.
func (dev *Device) SuperblockAddrs() []btrfsvol.PhysicalAddr {
	size := dev.Size()
	var ret []btrfsvol.PhysicalAddr
	for _, addr := range superblockAddrs {
		if addr+btrfsvol.PhysicalAddr(SuperblockSize) <= size {
			ret = append(ret, addr)
		}
	}
	return ret
}

const SuperblockSize = 0x1000

// Superblock reads and validates the primary superblock.
func (dev *Device) Superblock() (*Superblock, error) {
	if dev.cacheSuperblock != nil {
		return dev.cacheSuperblock, nil
	}
	addrs := dev.SuperblockAddrs()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("device %q: too small to contain a superblock", dev.Name())
	}

	dat := make([]byte, SuperblockSize)
	if err := diskio.ReadAll[btrfsvol.PhysicalAddr](dev, dat, addrs[0]); err != nil {
		return nil, err
	}
	var sb Superblock
	if _, err := binstruct.Unmarshal(dat, &sb); err != nil {
		return nil, fmt.Errorf("device %q: %w", dev.Name(), err)
	}
	if !bytes.Equal(sb.Magic[:], Magic[:]) {
		return nil, fmt.Errorf("device %q: not a btrfs device", dev.Name())
	}
	if err := sb.ValidateChecksum(); err != nil {
		return nil, fmt.Errorf("device %q: %w", dev.Name(), err)
	}

	dev.cacheSuperblock = &sb
	return &sb, nil
}

// HasSignature reports whether the primary superblock location
// carries the btrfs magic, without validating anything else.
func (dev *Device) HasSignature() (bool, error) {
	addrs := dev.SuperblockAddrs()
	if len(addrs) == 0 {
		return false, nil
	}
	dat := make([]byte, len(Magic))
	magicOff := addrs[0] + 0x40
	if err := diskio.ReadAll[btrfsvol.PhysicalAddr](dev, dat, magicOff); err != nil {
		return false, err
	}
	return bytes.Equal(dat, Magic[:]), nil
}
