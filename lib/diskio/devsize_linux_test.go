// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package diskio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileSizeRegularFile(t *testing.T) {
	t.Parallel()
	fh, err := os.Create(filepath.Join(t.TempDir(), "img"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, fh.Close()) }()
	require.NoError(t, fh.Truncate(4096))

	size, err := fileSize(fh)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestDiscardRegularFile(t *testing.T) {
	t.Parallel()
	fh, err := os.Create(filepath.Join(t.TempDir(), "img"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, fh.Close()) }()

	assert.True(t, errors.Is(Discard(fh, 4096), unix.EOPNOTSUPP))
}
