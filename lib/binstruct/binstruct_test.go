// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/binstruct"
)

type taggedStruct struct {
	Magic         [4]byte `bin:"off=0x0, siz=0x4"`
	ID            uint64  `bin:"off=0x4, siz=0x8"`
	Level         uint8   `bin:"off=0xc, siz=0x1"`
	Count         int32   `bin:"off=0xd, siz=0x4"`
	binstruct.End `bin:"off=0x11"`
	Scratch       string `bin:"-"`
}

func TestStructRoundTrip(t *testing.T) {
	t.Parallel()
	in := taggedStruct{
		Magic:   [4]byte{'t', 'e', 's', 't'},
		ID:      0x1122334455667788,
		Level:   3,
		Count:   -2,
		Scratch: "not serialized",
	}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 0x11)
	assert.Equal(t, []byte{
		't', 'e', 's', 't',
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		0x03,
		0xfe, 0xff, 0xff, 0xff,
	}, dat)

	var out taggedStruct
	n, err := binstruct.Unmarshal(dat, &out)
	require.NoError(t, err)
	assert.Equal(t, 0x11, n)
	in.Scratch = ""
	assert.Equal(t, in, out)
}

func TestStaticSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0x11, binstruct.StaticSize(taggedStruct{}))
	assert.Equal(t, 1, binstruct.StaticSize(uint8(0)))
	assert.Equal(t, 8, binstruct.StaticSize(int64(0)))
	assert.Equal(t, 16, binstruct.StaticSize([16]byte{}))
}

type driftedStruct struct {
	A             uint32 `bin:"off=0x0, siz=0x4"`
	B             uint32 `bin:"off=0x8, siz=0x4"` // gap; should be off=0x4
	binstruct.End `bin:"off=0xc"`
}

func TestStructTagValidation(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		_, _ = binstruct.Marshal(driftedStruct{})
	})
}

func TestUnmarshalShortData(t *testing.T) {
	t.Parallel()
	var out taggedStruct
	_, err := binstruct.Unmarshal(make([]byte, 4), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least")
}

func TestNeedNBytes(t *testing.T) {
	t.Parallel()
	assert.NoError(t, binstruct.NeedNBytes(make([]byte, 8), 8))
	assert.Error(t, binstruct.NeedNBytes(make([]byte, 7), 8))
}
