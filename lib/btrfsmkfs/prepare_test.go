// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/gobtrfs/btrfs-mkfs/lib/textui"
)

func testContext(t *testing.T) context.Context {
	return dlog.WithLogger(context.Background(), textui.NewLogger(io.Discard, dlog.LogLevelError))
}

func testImage(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(size))
	require.NoError(t, fh.Close())
	return path
}

func TestPrepareDevices(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	cfg := Config{Force: true}
	require.NoError(t, cfg.FillDefaults(1))

	path := testImage(t, "dev0.img", 256*1024*1024)
	devices, err := prepareDevices(ctx, cfg, []string{path})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	pd := devices[0]
	defer pd.close()

	assert.NoError(t, pd.err)
	assert.Equal(t, path, pd.path)
	assert.NotZero(t, pd.uuid)
	assert.Equal(t, int64(256*1024*1024), int64(pd.size))
}

func TestPrepareDeviceTooSmall(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	cfg := Config{Force: true}
	require.NoError(t, cfg.FillDefaults(1))

	path := testImage(t, "tiny.img", 16*1024*1024)
	_, err := prepareDevices(ctx, cfg, []string{path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.ENOSPC))
}

func TestPrepareDeviceByteCount(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)

	// capping below the device size works
	cfg := Config{Force: true, NumBytes: 128 * 1024 * 1024}
	require.NoError(t, cfg.FillDefaults(1))
	path := testImage(t, "dev0.img", 256*1024*1024)
	devices, err := prepareDevices(ctx, cfg, []string{path})
	require.NoError(t, err)
	assert.Equal(t, int64(128*1024*1024), int64(devices[0].size))
	devices[0].close()

	// asking for more bytes than the device has fails
	cfg = Config{Force: true, NumBytes: 1024 * 1024 * 1024}
	require.NoError(t, cfg.FillDefaults(1))
	_, err = prepareDevices(ctx, cfg, []string{path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.ENOSPC))
}

func TestPrepareDeferredFailure(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	cfg := Config{Force: true}
	require.NoError(t, cfg.FillDefaults(2))

	good := testImage(t, "dev0.img", 256*1024*1024)
	bad := filepath.Join(t.TempDir(), "does-not-exist.img")

	// a failure on a device beyond the first does not fail
	// preparation; it is recorded on the device
	devices, err := prepareDevices(ctx, cfg, []string{good, bad})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	defer devices[0].close()
	assert.NoError(t, devices[0].err)
	assert.Error(t, devices[1].err)

	// the recorded failure surfaces when the device is attached
	fs := newFS(cfg, devices)
	attachErr := fs.attachDevice(ctx, devices[1])
	require.Error(t, attachErr)
	assert.Contains(t, attachErr.Error(), bad)

	// but a failure on the first device aborts immediately
	_, err = prepareDevices(ctx, cfg, []string{bad, good})
	require.Error(t, err)
}

func TestPrepareZeroesSignature(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	cfg := Config{}
	require.NoError(t, cfg.FillDefaults(1))

	path := testImage(t, "dev0.img", 256*1024*1024)

	// plant a btrfs magic at the primary superblock offset
	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = fh.WriteAt([]byte("_BHRfS_M"), 0x1_0000+0x40)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	// without --force the signature is refused
	_, err = prepareDevices(ctx, cfg, []string{path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.EEXIST))

	// with --force it is clobbered
	cfg.Force = true
	devices, err := prepareDevices(ctx, cfg, []string{path})
	require.NoError(t, err)
	defer devices[0].close()

	buf := make([]byte, 8)
	fh, err = os.Open(path)
	require.NoError(t, err)
	_, err = fh.ReadAt(buf, 0x1_0000+0x40)
	require.NoError(t, err)
	require.NoError(t, fh.Close())
	assert.Equal(t, make([]byte, 8), buf)
}
