// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parttab

import (
	"errors"
	"strings"
	"testing"
)

const defaultTable = `# Name,   Type, SubType, Offset,   Size,     Flags
nvs,      data, nvs,     0x9000,   0x5000,
otadata,  data, ota,     0xe000,   0x2000,
app0,     app,  ota_0,   0x10000,  0x140000,
spiffs,   data, spiffs,  0x150000, 0x2B0000,
`

func TestParse(t *testing.T) {
	tab, err := ParseString(defaultTable)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{Name: "nvs", Type: Data, TypeName: "data", Subtype: "nvs", Offset: 0x9000, Size: 0x5000, Line: 2},
		{Name: "otadata", Type: Data, TypeName: "data", Subtype: "ota", Offset: 0xe000, Size: 0x2000, Line: 3},
		{Name: "app0", Type: App, TypeName: "app", Subtype: "ota_0", Offset: 0x10000, Size: 0x140000, Line: 4},
		{Name: "spiffs", Type: Data, TypeName: "data", Subtype: "spiffs", Offset: 0x150000, Size: 0x2b0000, Line: 5},
	}
	if len(tab.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(tab.Entries), len(want))
	}
	for i, e := range tab.Entries {
		if *e != want[i] {
			t.Errorf("entry %d:\n got  %+v\n want %+v", i, *e, want[i])
		}
	}
	if len(tab.Skipped) != 0 {
		t.Errorf("unexpected skipped rows: %+v", tab.Skipped)
	}
	if err := tab.Check(4096); err != nil {
		t.Errorf("check: %v", err)
	}
}

func TestParseHeaderAndBlankLines(t *testing.T) {
	const text = "Name, Type, SubType, Offset, Size, Flags\n" +
		"\n" +
		"   \n" +
		"  # comment\n" +
		"app0, app, factory, 65536, 1M, encrypted\n"
	tab, err := ParseString(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(tab.Entries) != 1 {
		t.Fatalf("got %d entries: %+v", len(tab.Entries), tab.Skipped)
	}
	e := tab.Entries[0]
	if e.Offset != 0x10000 || e.Size != 1<<20 || e.Flags != "encrypted" || e.Line != 5 {
		t.Fatalf("unexpected entry: %+v", *e)
	}
}

func TestParseSkipsBadRows(t *testing.T) {
	const text = "nvs, data, nvs\n" +
		"otadata, data, ota, , 0x2000\n" +
		"app0, app, ota_0, 0xZZ, 0x140000\n" +
		"spiffs, data, spiffs, 0x150000, lots\n" +
		"coredump, data, coredump, 0x3F0000\n"
	tab, err := ParseString(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(tab.Entries) != 1 || tab.Entries[0].Name != "coredump" {
		t.Fatalf("unexpected entries: %v", tab.Entries)
	}
	if tab.Entries[0].Size != 0 {
		t.Errorf("missing size should be 0, got %#x", tab.Entries[0].Size)
	}
	names := make([]string, len(tab.Skipped))
	for i, s := range tab.Skipped {
		names[i] = s.Entry.Name
		if s.Reason == "" {
			t.Errorf("row %s skipped without a reason", s.Entry.Name)
		}
	}
	if got := strings.Join(names, ","); got != "nvs,otadata,app0,spiffs" {
		t.Fatalf("skipped rows: %s", got)
	}
	if tab.Skipped[2].Entry.Line != 3 || tab.Skipped[2].Entry.Type != App {
		t.Errorf("skipped app0 row lost its fields: %+v", tab.Skipped[2].Entry)
	}
}

func TestParseDuplicateName(t *testing.T) {
	const text = "app0, app, ota_0, 0x10000, 0x100000\n" +
		"app0, app, ota_1, 0x110000, 0x100000\n"
	_, err := ParseString(text)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("got %v, want ErrDuplicateName", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Fatalf("got %v, want *ParseError at line 2", err)
	}
}

func TestParseSize(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"0x140000", 0x140000, true},
		{"4096", 4096, true},
		{"64K", 64 << 10, true},
		{"64k", 64 << 10, true},
		{"3M", 3 << 20, true},
		{"0x10K", 16 << 10, true},
		{"4096M", 0, false},
		{"K", 0, false},
		{"1G", 0, false},
	} {
		got, err := ParseSize(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseSize(%q) = %#x, %v", tc.in, got, err)
		}
	}
}

func TestCheck(t *testing.T) {
	for _, tc := range []struct {
		name, text string
		ok         bool
	}{
		{"ok", defaultTable, true},
		{"unaligned", "app0, app, ota_0, 0x10800, 0x1000\n", false},
		{"overlap", "a, data, nvs, 0x9000, 0x6000\nb, data, ota, 0xe000, 0x2000\n", false},
		{"unordered", "b, data, ota, 0xe000, 0x2000\na, data, nvs, 0x9000, 0x5000\n", true},
	} {
		tab, err := ParseString(tc.text)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if err := tab.Check(4096); (err == nil) != tc.ok {
			t.Errorf("%s: Check = %v", tc.name, err)
		}
	}
}

func TestSortedKeepsInputOrder(t *testing.T) {
	tab, err := ParseString("b, data, ota, 0xe000, 0x2000\na, data, nvs, 0x9000, 0x5000\n")
	if err != nil {
		t.Fatal(err)
	}
	s := tab.Sorted()
	if s[0].Name != "a" || tab.Entries[0].Name != "b" {
		t.Fatalf("Sorted changed the table or didn't sort: %v %v", s, tab.Entries)
	}
	if tab.Lookup("a") != s[0] || tab.Lookup("x") != nil {
		t.Fatal("Lookup")
	}
}
