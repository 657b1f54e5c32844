// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfssum_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobtrfs/btrfs-mkfs/lib/btrfs/btrfssum"
)

func TestCSumFormat(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		InputSum btrfssum.CSum
		InputFmt string
		Output   string
	}
	csum := btrfssum.CSum{0xbd, 0x7b, 0x41, 0xf4, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0}
	testcases := map[string]TestCase{
		"s":     {InputSum: csum, InputFmt: "%s", Output: "bd7b41f400000000000000000000000000000000000000000000000000000000"},
		"x":     {InputSum: csum, InputFmt: "%x", Output: "bd7b41f400000000000000000000000000000000000000000000000000000000"},
		"v":     {InputSum: csum, InputFmt: "%v", Output: "bd7b41f400000000000000000000000000000000000000000000000000000000"},
		"70s":   {InputSum: csum, InputFmt: "|% 70s", Output: "|      bd7b41f400000000000000000000000000000000000000000000000000000000"},
		"#180v": {InputSum: csum, InputFmt: "%#180v", Output: "   btrfssum.CSum{0xbd, 0x7b, 0x41, 0xf4, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0}"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			actual := fmt.Sprintf(tc.InputFmt, tc.InputSum)
			assert.Equal(t, tc.Output, actual)
		})
	}
}

func TestCSumTypes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "crc32c", btrfssum.TYPE_CRC32.String())
	assert.Equal(t, "xxhash64", btrfssum.TYPE_XXHASH.String())
	assert.Equal(t, "sha256", btrfssum.TYPE_SHA256.String())
	assert.Equal(t, "blake2", btrfssum.TYPE_BLAKE2.String())
	assert.Equal(t, "4", btrfssum.CSumType(4).String())

	assert.True(t, btrfssum.TYPE_CRC32.Valid())
	assert.True(t, btrfssum.TYPE_BLAKE2.Valid())
	assert.False(t, btrfssum.CSumType(4).Valid())

	assert.Equal(t, 4, btrfssum.TYPE_CRC32.Size())
	assert.Equal(t, 8, btrfssum.TYPE_XXHASH.Size())
	assert.Equal(t, 32, btrfssum.TYPE_SHA256.Size())
	assert.Equal(t, 32, btrfssum.TYPE_BLAKE2.Size())
}

func TestCSumSum(t *testing.T) {
	t.Parallel()
	data := []byte("hello, world")

	// crc32c of "hello, world", little-endian
	sum, err := btrfssum.TYPE_CRC32.Sum(data)
	require.NoError(t, err)
	assert.Equal(t, "1fa49969", sum.Fmt(btrfssum.TYPE_CRC32))
	assert.Equal(t, make([]byte, 28), sum[4:])

	sum, err = btrfssum.TYPE_XXHASH.Sum(data)
	require.NoError(t, err)
	assert.NotEqual(t, btrfssum.CSum{}, sum)
	// zero-padded past the 8-byte digest
	assert.Equal(t, make([]byte, 24), sum[8:])

	sum, err = btrfssum.TYPE_SHA256.Sum(data)
	require.NoError(t, err)
	assert.Equal(t, "09ca7e4eaa6e8ae9c7d261167129184883644d07dfba7cbfbc4c8a2e08360d5b", sum.String())

	_, err = btrfssum.CSumType(9).Sum(data)
	assert.Error(t, err)
}

func TestCSumText(t *testing.T) {
	t.Parallel()
	var sum btrfssum.CSum
	require.NoError(t, sum.UnmarshalText([]byte("bd7b41f4")))
	assert.Equal(t, btrfssum.CSum{0xbd, 0x7b, 0x41, 0xf4}, sum)
	txt, err := sum.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "bd7b41f400000000000000000000000000000000000000000000000000000000", string(txt))
}
