// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parttab reads partition tables written in the CSV format used by
// the ESP-IDF and Arduino-ESP32 frameworks:
//
//	# Name,   Type, SubType, Offset,   Size,     Flags
//	nvs,      data, nvs,     0x9000,   0x5000,
//	otadata,  data, ota,     0xe000,   0x2000,
//	app0,     app,  ota_0,   0x10000,  0x140000,
//	spiffs,   data, spiffs,  0x150000, 0x2B0000,
//
// The parser is tolerant: rows it cannot understand are skipped and reported
// in Table.Skipped instead of failing the whole table.
package parttab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/embeddedgo/factory/egfactory/internal/flash"
)

type Type uint8

const (
	Other Type = iota
	App
	Data
)

func (t Type) String() string {
	switch t {
	case App:
		return "app"
	case Data:
		return "data"
	}
	return "other"
}

func parseType(s string) Type {
	switch strings.ToLower(s) {
	case "app", "0", "0x0", "0x00":
		return App
	case "data", "1", "0x1", "0x01":
		return Data
	}
	return Other
}

// Entry is a single partition.
type Entry struct {
	Name     string
	Type     Type
	TypeName string // type as written in the table
	Subtype  string
	Offset   uint32
	Size     uint32 // 0 if not specified
	Flags    string
	Line     int // line number in the source table
}

// End returns the first byte after the partition.
func (e *Entry) End() uint64 {
	return uint64(e.Offset) + uint64(e.Size)
}

func (e *Entry) String() string {
	return fmt.Sprintf(
		"%s (%s/%s, %#x, %#x)", e.Name, e.TypeName, e.Subtype, e.Offset, e.Size,
	)
}

// Skipped describes a row that was ignored by the parser. Entry contains the
// fields that could be read (at least Name and Line).
type Skipped struct {
	Entry  Entry
	Reason string
}

// Table is a parsed partition table. Entries are kept in input order.
type Table struct {
	Entries []*Entry
	Skipped []Skipped
}

var ErrDuplicateName = errors.New("duplicate partition name")

// ParseError is a fatal error found in the partition table.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("partition table line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses the partition table read from r.
func Parse(r io.Reader) (*Table, error) {
	t := new(Table)
	names := make(map[string]int)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Split(text, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(t.Entries)+len(t.Skipped) == 0 && strings.EqualFold(fields[0], "name") {
			continue // uncommented header
		}
		e, reason := parseRow(fields)
		e.Line = line
		if reason != "" {
			t.Skipped = append(t.Skipped, Skipped{Entry: *e, Reason: reason})
			continue
		}
		if prev, ok := names[e.Name]; ok {
			return nil, &ParseError{
				line,
				fmt.Errorf("%w %q (first defined at line %d)", ErrDuplicateName, e.Name, prev),
			}
		}
		names[e.Name] = line
		t.Entries = append(t.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseString is like Parse but reads the table from the string.
func ParseString(text string) (*Table, error) {
	return Parse(strings.NewReader(text))
}

func parseRow(fields []string) (e *Entry, reason string) {
	e = new(Entry)
	usable := 0
	for _, f := range fields {
		if f == "" {
			break
		}
		usable++
	}
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	e.Name, e.TypeName, e.Subtype = get(0), get(1), get(2)
	e.Type = parseType(e.TypeName)
	e.Flags = strings.Join(fields[min(len(fields), 5):], ",")
	if usable < 4 {
		return e, fmt.Sprintf("only %d usable fields", usable)
	}
	offset, err := flash.ParseAddr(get(3))
	if err != nil {
		return e, fmt.Sprintf("bad offset %q", get(3))
	}
	e.Offset = offset
	if s := get(4); s != "" {
		size, err := ParseSize(s)
		if err != nil {
			return e, fmt.Sprintf("bad size %q", s)
		}
		e.Size = size
	}
	return e, ""
}

// ParseSize parses the partition size written in hexadecimal (0x prefix) or
// decimal form with an optional K (KiB) or M (MiB) suffix.
func ParseSize(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	mul := uint64(1)
	if n := len(s); n > 1 {
		switch s[n-1] {
		case 'k', 'K':
			mul, s = 1<<10, s[:n-1]
		case 'm', 'M':
			mul, s = 1<<20, s[:n-1]
		}
	}
	u, err := flash.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	v := uint64(u) * mul
	if v > 1<<32-1 {
		return 0, &strconv.NumError{Func: "ParseSize", Num: s, Err: strconv.ErrRange}
	}
	return uint32(v), nil
}

// Lookup returns the partition with the given name or nil.
func (t *Table) Lookup(name string) *Entry {
	for _, e := range t.Entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Sorted returns the entries sorted by offset.
func (t *Table) Sorted() []*Entry {
	es := make([]*Entry, len(t.Entries))
	copy(es, t.Entries)
	sort.SliceStable(es, func(i, j int) bool { return es[i].Offset < es[j].Offset })
	return es
}

// Check verifies that all partitions are aligned to the sector size and that
// they don't overlap. Partitions of unknown size are only checked for
// alignment of their offset.
func (t *Table) Check(sector uint32) error {
	es := t.Sorted()
	for i, e := range es {
		if sector != 0 && (e.Offset%sector != 0 || e.Size%sector != 0) {
			return fmt.Errorf(
				"partition %s (%#x, %#x) not aligned to the %#x sector size",
				e.Name, e.Offset, e.Size, sector,
			)
		}
		if i > 0 {
			prev := es[i-1]
			if uint64(e.Offset) < prev.End() {
				return fmt.Errorf(
					"partition %s (%#x-%#x) overlaps %s (%#x)",
					prev.Name, prev.Offset, prev.End(), e.Name, e.Offset,
				)
			}
		}
	}
	return nil
}
