// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfssum implements the checksum algorithms that btrfs
// supports for metadata blocks and data extents.
package btrfssum

import (
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/gobtrfs/btrfs-mkfs/lib/fmtutil"
)

// CSum is a checksum in its full 32-byte on-disk slot; algorithms
// with a shorter digest zero-pad the tail.
type CSum [0x20]byte

var (
	_ fmt.Stringer             = CSum{}
	_ fmt.Formatter            = CSum{}
	_ encoding.TextMarshaler   = CSum{}
	_ encoding.TextUnmarshaler = (*CSum)(nil)
)

func (csum CSum) String() string {
	return hex.EncodeToString(csum[:])
}

func (csum CSum) MarshalText() ([]byte, error) {
	var ret [len(csum) * 2]byte
	hex.Encode(ret[:], csum[:])
	return ret[:], nil
}

func (csum *CSum) UnmarshalText(text []byte) error {
	*csum = CSum{}
	_, err := hex.Decode(csum[:], text)
	return err
}

func (csum CSum) Fmt(typ CSumType) string {
	return hex.EncodeToString(csum[:typ.Size()])
}

func (csum CSum) Format(f fmt.State, verb rune) {
	fmtutil.FormatByteArrayStringer(csum, csum[:], f, verb)
}

type CSumType uint16

const (
	TYPE_CRC32 = CSumType(iota)
	TYPE_XXHASH
	TYPE_SHA256
	TYPE_BLAKE2

	maxCSumType = TYPE_BLAKE2
)

var csumTypeNames = map[CSumType]string{
	TYPE_CRC32:  "crc32c",
	TYPE_XXHASH: "xxhash64",
	TYPE_SHA256: "sha256",
	TYPE_BLAKE2: "blake2",
}

var csumTypeSizes = map[CSumType]int{
	TYPE_CRC32:  4,
	TYPE_XXHASH: 8,
	TYPE_SHA256: 32,
	TYPE_BLAKE2: 32,
}

func (typ CSumType) Valid() bool {
	return typ <= maxCSumType
}

func (typ CSumType) String() string {
	if name, ok := csumTypeNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("%d", uint16(typ))
}

func (typ CSumType) Size() int {
	if size, ok := csumTypeSizes[typ]; ok {
		return size
	}
	return len(CSum{})
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func (typ CSumType) Sum(data []byte) (CSum, error) {
	var ret CSum
	switch typ {
	case TYPE_CRC32:
		binary.LittleEndian.PutUint32(ret[:], crc32.Update(0, castagnoli, data))
		return ret, nil
	case TYPE_XXHASH:
		binary.LittleEndian.PutUint64(ret[:], xxhash.Sum64(data))
		return ret, nil
	case TYPE_SHA256:
		digest := sha256.Sum256(data)
		copy(ret[:], digest[:])
		return ret, nil
	case TYPE_BLAKE2:
		digest := blake2b.Sum256(data)
		copy(ret[:], digest[:])
		return ret, nil
	default:
		return CSum{}, fmt.Errorf("unknown checksum type: %v", typ)
	}
}
