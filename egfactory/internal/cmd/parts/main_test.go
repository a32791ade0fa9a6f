// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parts

import (
	"strings"
	"testing"

	"github.com/embeddedgo/factory/egfactory/internal/layout"
	"github.com/embeddedgo/factory/egfactory/internal/parttab"
)

func TestPrint(t *testing.T) {
	tab, err := parttab.ParseString("" +
		"spiffs,data,spiffs,0x150000,0x2B0000\n" +
		"app0,app,ota_0,0x10000,0x140000\n" +
		"broken,data\n")
	if err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	printTable(&sb, tab)
	out := sb.String()
	if strings.Index(out, "app0") > strings.Index(out, "spiffs") {
		t.Errorf("partitions not sorted by offset:\n%s", out)
	}
	if !strings.Contains(out, "skipped line 3 (broken)") {
		t.Errorf("skipped row not printed:\n%s", out)
	}

	l, err := layout.Resolve(tab, layout.DefaultIdentify, 4096)
	if err != nil {
		t.Fatal(err)
	}
	sb.Reset()
	printLayout(&sb, l, 0)
	out = sb.String()
	for _, s := range []string{"app0", "0x10000", "max 1310720 bytes", "spiffs", "0x150000"} {
		if !strings.Contains(out, s) {
			t.Errorf("%q missing in:\n%s", s, out)
		}
	}
}
