// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestOutName(t *testing.T) {
	cases := []struct {
		out, in, inSuffix, outSuffix string
		want                         string
	}{
		{"x.bin", "fw.bin", ".bin", ".factory.bin", "x.bin"},
		{"", ".build/esp32/firmware.bin", ".bin", ".factory.bin", ".build/esp32/firmware.factory.bin"},
		{"", "firmware.BIN", ".bin", ".factory.hex", "firmware.factory.hex"},
		{"", "firmware.elf", ".bin", ".factory.bin", "firmware.elf.factory.bin"},
		{"", "data", "", ".fs.bin", "data.fs.bin"},
		{"", "data/", "", ".fs.bin", "data.fs.bin"},
		{"", "web/data//", "", ".fs.bin", "web/data.fs.bin"},
	}
	for _, c := range cases {
		if got := OutName(c.out, c.in, c.inSuffix, c.outSuffix); got != filepath.FromSlash(c.want) {
			t.Errorf("OutName(%q, %q, %q, %q) = %q, want %q",
				c.out, c.in, c.inSuffix, c.outSuffix, got, c.want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		verbose, quiet bool
		level          slog.Level
	}{
		{false, false, slog.LevelInfo},
		{true, false, slog.LevelDebug},
		{false, true, slog.LevelWarn},
		{true, true, slog.LevelDebug},
	}
	for _, c := range cases {
		h := NewLogger(c.verbose, c.quiet).Handler()
		if !h.Enabled(ctx, c.level) || (c.level > slog.LevelDebug && h.Enabled(ctx, c.level-1)) {
			t.Errorf("verbose=%v quiet=%v: minimum level is not %v", c.verbose, c.quiet, c.level)
		}
	}
}
