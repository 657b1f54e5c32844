// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"strings"

	googleuuid "github.com/google/uuid"

	"github.com/gobtrfs/btrfs-mkfs/lib/fmtutil"
)

type UUID [16]byte

var (
	_ fmt.Stringer             = UUID{}
	_ fmt.Formatter            = UUID{}
	_ encoding.TextMarshaler   = UUID{}
	_ encoding.TextUnmarshaler = (*UUID)(nil)
)

func (uuid UUID) String() string {
	str := hex.EncodeToString(uuid[:])
	return strings.Join([]string{
		str[:8],
		str[8:12],
		str[12:16],
		str[16:20],
		str[20:32],
	}, "-")
}

func (uuid UUID) MarshalText() ([]byte, error) {
	return []byte(uuid.String()), nil
}

func (uuid *UUID) UnmarshalText(text []byte) error {
	var err error
	*uuid, err = ParseUUID(string(text))
	return err
}

func (uuid UUID) Format(f fmt.State, verb rune) {
	fmtutil.FormatByteArrayStringer(uuid, uuid[:], f, verb)
}

func (uuid UUID) IsZero() bool {
	return uuid == UUID{}
}

func (a UUID) Compare(b UUID) int {
	for i := range a {
		if d := int(a[i]) - int(b[i]); d != 0 {
			return d
		}
	}
	return 0
}

// ParseUUID accepts only the canonical 36-character
// "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form.
func ParseUUID(str string) (UUID, error) {
	if len(str) != 36 {
		return UUID{}, fmt.Errorf("not a canonical 36-character UUID: %q", str)
	}
	for _, i := range []int{8, 13, 18, 23} {
		if str[i] != '-' {
			return UUID{}, fmt.Errorf("not a canonical 36-character UUID: %q", str)
		}
	}
	parsed, err := googleuuid.Parse(str)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID %q: %w", str, err)
	}
	return UUID(parsed), nil
}

func MustParseUUID(str string) UUID {
	ret, err := ParseUUID(str)
	if err != nil {
		panic(err)
	}
	return ret
}

// NewUUID returns a fresh random (version 4) UUID.
func NewUUID() UUID {
	return UUID(googleuuid.New())
}
