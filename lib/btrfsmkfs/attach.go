// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsmkfs

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
)

// attachDevices registers every device beyond the first in the
// filesystem's device set.  Preparation failures on those devices
// were deferred; they surface here, and any one of them fails the
// whole operation.
//
// Nothing is committed here; the registrations ride the RAID-groups
// commit, so device membership and group layout land on disk
// together.
func (fs *FS) attachDevices(ctx context.Context) error {
	for _, pd := range fs.devices[1:] {
		if err := fs.attachDevice(ctx, pd); err != nil {
			return err
		}
	}
	fs.advance(StateDevicesAttached)
	return nil
}

func (fs *FS) attachDevice(ctx context.Context, pd *preparedDevice) error {
	if pd.err != nil {
		return fmt.Errorf("device %q: %w", pd.path, pd.err)
	}
	member, err := fs.deviceIsMember(pd)
	if err != nil {
		return fmt.Errorf("device %q: %w", pd.path, err)
	}
	if member {
		dlog.Debugf(ctx, "device %v (%q) is already a member", pd.id, pd.path)
		return nil
	}
	fs.space.addDevice(pd.id, pd.uuid, pd.size)
	fs.attached = append(fs.attached, pd)
	dlog.Debugf(ctx, "attached device %v (%q, %v bytes)", pd.id, pd.path, pd.size)
	return nil
}

// deviceIsMember reports whether the device already belongs to this
// filesystem: either its canonical superblock slot names our FSUUID,
// or it was registered earlier in this run and the registration has
// not been committed yet.
func (fs *FS) deviceIsMember(pd *preparedDevice) (bool, error) {
	for _, attached := range fs.attached {
		if attached.id == pd.id {
			return true, nil
		}
	}
	hasSig, err := pd.dev.HasSignature()
	if err != nil || !hasSig {
		return false, err
	}
	sb, err := pd.dev.Superblock()
	if err != nil {
		return false, err
	}
	return sb.FSUUID == fs.fsUUID, nil
}
