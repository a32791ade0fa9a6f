// Copyright 2024 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

const uf2FamilyIDPresent = 0x00002000

// uf2FamilyMap maps the chip names to the UF2 family IDs registered in the
// microsoft/uf2 repository.
var uf2FamilyMap = map[string]uint32{
	"esp32":   0x1c5f21b0,
	"esp32s2": 0xbfdd4eee,
	"esp32s3": 0xc47e5767,
	"esp32c2": 0x2b88d29c,
	"esp32c3": 0xd42ba06c,
	"esp32c5": 0xf71c0343,
	"esp32c6": 0x540ddf62,
	"esp32h2": 0x332726f6,
	"esp32p4": 0x3d308e94,
	"esp8266": 0x7eab61ed,
}

// uf2Family returns the family ID for the chip name or the numeric ID.
func uf2Family(chip string) (uint32, error) {
	if id, ok := uf2FamilyMap[chip]; ok {
		return id, nil
	}
	u, err := strconv.ParseUint(chip, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("uf2: unknown family for chip %q", chip)
	}
	return uint32(u), nil
}

type uf2block struct {
	Magic0 uint32
	Magic1 uint32
	Flags  uint32
	Addr   uint32
	Len    uint32
	Seq    uint32
	Total  uint32
	Family uint32
	Data   [256]byte
	_      [476 - 256]byte
	Magic2 uint32
}

const uf2BlockSize = 512

type uf2Writer struct {
	w   io.Writer
	b   uf2block
	pad byte
}

func newUF2Writer(w io.Writer, addr, flags, family uint32, size int, pad byte) *uf2Writer {
	u := new(uf2Writer)
	u.w = w
	u.pad = pad
	u.b.Magic0 = 0x0a324655
	u.b.Magic1 = 0x9e5d5157
	u.b.Flags = flags
	u.b.Addr = addr
	u.b.Total = uint32((size + len(u.b.Data) - 1) / len(u.b.Data))
	u.b.Family = family
	u.b.Magic2 = 0x0ab16f30
	return u
}

func (u *uf2Writer) Write(p []byte) (n int, err error) {
	b := &u.b
	for len(p) != 0 {
		m := copy(b.Data[b.Len:], p)
		n += m
		p = p[m:]
		b.Len += uint32(m)
		if int(b.Len) == len(b.Data) {
			if err = u.writeBlock(); err != nil {
				return
			}
		}
	}
	return
}

// Flush writes the last, partially filled block. The rest of its payload is
// filled with the pad byte.
func (u *uf2Writer) Flush() error {
	if u.b.Len == 0 {
		return nil
	}
	rest := u.b.Data[u.b.Len:]
	for i := range rest {
		rest[i] = u.pad
	}
	u.b.Len = uint32(len(u.b.Data))
	return u.writeBlock()
}

func (u *uf2Writer) writeBlock() error {
	b := &u.b
	if err := binary.Write(u.w, binary.LittleEndian, b); err != nil {
		return err
	}
	b.Addr += b.Len
	b.Seq++
	b.Len = 0
	return nil
}
