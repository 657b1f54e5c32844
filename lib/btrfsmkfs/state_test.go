// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateAdvance(t *testing.T) {
	t.Parallel()
	fs := &FS{}
	assert.Equal(t, StateUninitialized, fs.state)

	fs.advance(StateDevicesPrepared)
	fs.advance(StateSuperblockWritten)
	assert.Equal(t, StateSuperblockWritten, fs.state)

	// states never go backwards, and never repeat
	assert.Panics(t, func() { fs.advance(StateDevicesPrepared) })
	assert.Panics(t, func() { fs.advance(StateSuperblockWritten) })

	// skipping forward is fine; aborting is always fine
	fs.advance(StateRecowed)
	fs.advance(StateAborted)
	assert.Equal(t, StateAborted, fs.state)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "UNINITIALIZED", StateUninitialized.String())
	assert.Equal(t, "DEVICES_PREPARED", StateDevicesPrepared.String())
	assert.Equal(t, "FINALIZED", StateFinalized.String())
	assert.Equal(t, "ABORTED", StateAborted.String())
	assert.Equal(t, "State(99)", State(99).String())
}
