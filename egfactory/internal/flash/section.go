// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flash describes the pieces of a flash image and lays them out into
// a single byte stream.
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
)

// ErasedFlash is the value of every byte of an erased NOR flash sector. It is
// the default pad byte for the gaps between sections.
const ErasedFlash = 0xff

// A Section is a piece of data that must be written to the flash at Offset.
// The data is stored in the file Path or, if Path is empty, in Data.
type Section struct {
	Offset uint32 // location of the section in the flash
	Name   string // file name or a short description used in messages
	Path   string // file with the section data, empty for in-memory sections
	Data   []byte // section data if Path is empty or after Load
}

// FileSection returns a section backed by the file path.
func FileSection(offset uint32, path string) *Section {
	return &Section{Offset: offset, Name: path, Path: path}
}

// DataSection returns an in-memory section.
func DataSection(offset uint32, name string, data []byte) *Section {
	return &Section{Offset: offset, Name: name, Data: data}
}

func (s *Section) String() string {
	return fmt.Sprintf("%#x:%s", s.Offset, s.Name)
}

// Size returns the length of the section data in bytes.
func (s *Section) Size() (int64, error) {
	if s.Path == "" || s.Data != nil {
		return int64(len(s.Data)), nil
	}
	fi, err := os.Stat(s.Path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", s.Path)
	}
	return fi.Size(), nil
}

// Load reads the section file into Data. It does nothing for in-memory
// sections or already loaded ones.
func (s *Section) Load() (err error) {
	if s.Path == "" || s.Data != nil {
		return nil
	}
	s.Data, err = os.ReadFile(s.Path)
	return
}

func (s *Section) open() (io.ReadCloser, error) {
	if s.Path == "" || s.Data != nil {
		return io.NopCloser(bytes.NewReader(s.Data)), nil
	}
	return os.Open(s.Path)
}

type Sections []*Section

// SortByOffset sorts sections according to the Offset field. Sections with
// the same offset keep their relative order.
func (ss Sections) SortByOffset() {
	sort.SliceStable(
		ss,
		func(i, j int) bool {
			return ss[i].Offset < ss[j].Offset
		},
	)
}

// OverlapError reports two sections that occupy the same flash bytes.
type OverlapError struct {
	A, B *Section
	AEnd uint64 // end of A (exclusive)
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf(
		"overlapping sections: %s (%#x-%#x) and %s (starts at %#x)",
		e.A.Name, e.A.Offset, e.AEnd, e.B.Name, e.B.Offset,
	)
}

// ErrUnsorted is returned by Check if the sections aren't sorted by offset.
var ErrUnsorted = errors.New("sections not sorted by offset")

// Check verifies that ss is sorted by offset and that no two sections
// overlap. It returns the size of the image that covers all sections
// starting from offset 0.
func (ss Sections) Check() (end uint64, err error) {
	for i, s := range ss {
		size, err := s.Size()
		if err != nil {
			return 0, fmt.Errorf("section %s: %w", s.Name, err)
		}
		if i > 0 {
			prev := ss[i-1]
			if s.Offset < prev.Offset {
				return 0, fmt.Errorf(
					"%w: %s (%#x) after %s (%#x)",
					ErrUnsorted, s.Name, s.Offset, prev.Name, prev.Offset,
				)
			}
			if uint64(s.Offset) < end {
				return 0, &OverlapError{A: prev, B: s, AEnd: end}
			}
		}
		end = uint64(s.Offset) + uint64(size)
	}
	return end, nil
}

// Flatten writes the sections to w so that every section starts at its
// Offset counted from the beginning of w. The gaps between sections and the
// space before the first section are filled using the pad byte. The sections
// must be sorted and must not overlap (see Check).
func (ss Sections) Flatten(w io.Writer, pad byte) (n int64, err error) {
	if _, err = ss.Check(); err != nil {
		return
	}
	var padCache []byte
	for _, s := range ss {
		for gap := int64(s.Offset) - n; gap > 0; {
			m := min(gap, 64*1024)
			var k int
			k, err = w.Write(PadBytes(&padCache, int(m), pad))
			n += int64(k)
			gap -= int64(k)
			if err != nil {
				return
			}
		}
		var (
			r    io.ReadCloser
			size int64
			m    int64
		)
		if size, err = s.Size(); err != nil {
			return
		}
		if r, err = s.open(); err != nil {
			return
		}
		m, err = io.CopyN(w, r, size)
		r.Close()
		n += m
		if err != nil {
			return n, fmt.Errorf("section %s: %w", s.Name, err)
		}
	}
	return
}

// PadBytes returns the slice containing n bytes equal b.
func PadBytes(cache *[]byte, n int, b byte) []byte {
	if cache == nil {
		cache = new([]byte)
	}
	if len(*cache) < n || (len(*cache) > 0 && (*cache)[0] != b) {
		*cache = make([]byte, n)
		for i := range *cache {
			(*cache)[i] = b
		}
	}
	return (*cache)[:n]
}

// ParseSections parses the description of the binary files to be included in
// the image. The description has the form BIN1:ADDR1[,BIN2:ADDR2[,...]].
// Files with the .hex extension are read as Intel HEX and the :ADDR part is
// optional for them.
func ParseSections(descr string) (Sections, error) {
	var ss Sections
	for _, ba := range strings.Split(descr, ",") {
		ba = strings.TrimSpace(ba)
		if ba == "" {
			continue
		}
		if isHex(ba) {
			hs, err := ReadHex(ba)
			if err != nil {
				return nil, err
			}
			ss = append(ss, hs...)
			continue
		}
		i := strings.LastIndexByte(ba, ':')
		if i <= 0 {
			return nil, fmt.Errorf("bad '%s' (want BIN:ADDR)", ba)
		}
		bin, addr := ba[:i], ba[i+1:]
		offset, err := ParseAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("bad address in '%s': %w", ba, err)
		}
		if isHex(bin) {
			hs, err := ReadHex(bin)
			if err != nil {
				return nil, err
			}
			if len(hs) != 0 && hs[0].Offset != offset {
				return nil, fmt.Errorf(
					"%s: data starts at %#x, not at %#x", bin, hs[0].Offset, offset,
				)
			}
			ss = append(ss, hs...)
			continue
		}
		ss = append(ss, FileSection(offset, bin))
	}
	return ss, nil
}

func isHex(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".hex")
}

// ReadHex reads the Intel HEX file and returns one section for every
// contiguous data segment it contains.
func ReadHex(name string) (Sections, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var ss Sections
	for _, seg := range mem.GetDataSegments() {
		ss = append(ss, DataSection(seg.Address, name, seg.Data))
	}
	ss.SortByOffset()
	return ss, nil
}

// ParseAddr parses the flash address or size written in hexadecimal (0x
// prefix) or decimal form. Leading zeros don't make the number octal.
func ParseAddr(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, base = s[2:], 16
	}
	u, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
