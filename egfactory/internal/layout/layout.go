// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout decides where the application and the filesystem images go
// in the flash and checks that they fit there.
package layout

import (
	"fmt"
	"strings"

	"github.com/embeddedgo/factory/egfactory/internal/parttab"
)

// DefaultAppOffset is the application offset used when the partition table
// has no application partition.
const DefaultAppOffset = 0x10000

// Match reports whether the partition plays a given role.
type Match func(e *parttab.Entry) bool

// ByName matches partitions by name.
func ByName(name string) Match {
	return func(e *parttab.Entry) bool { return e.Name == name }
}

// BySubtype matches partitions of type t with the given subtype.
func BySubtype(t parttab.Type, subtype string) Match {
	return func(e *parttab.Entry) bool {
		return e.Type == t && strings.EqualFold(e.Subtype, subtype)
	}
}

// Identify tells the resolver how to find the application and the
// filesystem partitions.
type Identify struct {
	App Match
	FS  Match
}

// DefaultIdentify follows the Arduino-ESP32 naming convention.
var DefaultIdentify = Identify{
	App: ByName("app0"),
	FS:  ByName("spiffs"),
}

// Layout is the result of Resolve.
type Layout struct {
	AppName   string // empty if the default offset is used
	AppOffset uint32
	AppSize   uint32 // 0 means unbounded

	FSName   string
	FSOffset *uint32 // nil if there is no filesystem partition
	FSSize   *uint32
}

// HasFS reports whether the table has a filesystem partition.
func (l *Layout) HasFS() bool {
	return l.FSOffset != nil
}

// MaxAppSize returns the smaller non-zero value of the application partition
// size and boardMax. It returns 0 if both are unknown.
func (l *Layout) MaxAppSize(boardMax uint64) uint64 {
	limit := uint64(l.AppSize)
	if limit == 0 || (boardMax != 0 && boardMax < limit) {
		limit = boardMax
	}
	return limit
}

// ResolveError reports a partition table that can't be used to place the
// image sections.
type ResolveError struct {
	Role string // "application", "filesystem" or "" for table-wide problems
	Msg  string
}

func (e *ResolveError) Error() string {
	if e.Role == "" {
		return "partition table: " + e.Msg
	}
	return e.Role + " partition: " + e.Msg
}

// Resolve finds the application and filesystem partitions in the table.
// The sector size is used to verify the partition alignment (0 disables the
// alignment check).
func Resolve(t *parttab.Table, id Identify, sector uint32) (*Layout, error) {
	if err := t.Check(sector); err != nil {
		return nil, &ResolveError{Msg: err.Error()}
	}
	l := &Layout{AppOffset: DefaultAppOffset}
	app, err := find(t, id.App, "application")
	if err != nil {
		return nil, err
	}
	if app != nil {
		l.AppName = app.Name
		l.AppOffset = app.Offset
		l.AppSize = app.Size
	}
	fs, err := find(t, id.FS, "filesystem")
	if err != nil {
		return nil, err
	}
	if fs != nil {
		if fs.Size == 0 {
			return nil, &ResolveError{
				"filesystem", fmt.Sprintf("%s (line %d) has no size", fs.Name, fs.Line),
			}
		}
		off, size := fs.Offset, fs.Size
		l.FSName = fs.Name
		l.FSOffset = &off
		l.FSSize = &size
	}
	return l, nil
}

func find(t *parttab.Table, m Match, role string) (*parttab.Entry, error) {
	if m == nil {
		return nil, nil
	}
	var found *parttab.Entry
	for _, e := range t.Entries {
		if !m(e) {
			continue
		}
		if found != nil {
			return nil, &ResolveError{
				role,
				fmt.Sprintf(
					"ambiguous: %s (line %d) and %s (line %d)",
					found.Name, found.Line, e.Name, e.Line,
				),
			}
		}
		found = e
	}
	for _, s := range t.Skipped {
		if m(&s.Entry) {
			return nil, &ResolveError{
				role,
				fmt.Sprintf(
					"row %s (line %d) is unusable: %s",
					s.Entry.Name, s.Entry.Line, s.Reason,
				),
			}
		}
	}
	return found, nil
}
