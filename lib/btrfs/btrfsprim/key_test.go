// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func k(objID ObjID, typ ItemType, offset uint64) Key {
	return Key{
		ObjectID: objID,
		ItemType: typ,
		Offset:   offset,
	}
}

func TestKeyCompare(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, k(1, 2, 3).Compare(k(1, 2, 3)))

	// ObjectID dominates.
	assert.Negative(t, k(1, 255, 255).Compare(k(2, 0, 0)))
	assert.Positive(t, k(2, 0, 0).Compare(k(1, 255, 255)))

	// then ItemType
	assert.Negative(t, k(1, 2, 255).Compare(k(1, 3, 0)))
	assert.Positive(t, k(1, 3, 0).Compare(k(1, 2, 255)))

	// then Offset
	assert.Negative(t, k(1, 2, 3).Compare(k(1, 2, 4)))
	assert.Positive(t, k(1, 2, 4).Compare(k(1, 2, 3)))

	// everything sorts before MaxKey
	assert.Negative(t, k(18446744073709551614, 255, 18446744073709551615).Compare(MaxKey))
	assert.Equal(t, 0, MaxKey.Compare(MaxKey))
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(ROOT_TREE ROOT_ITEM 0)",
		k(ROOT_TREE_OBJECTID, ROOT_ITEM_KEY, 0).String())
	assert.Equal(t, "(FS_TREE ROOT_ITEM -1)",
		k(FS_TREE_OBJECTID, ROOT_ITEM_KEY, MaxOffset).String())
}
