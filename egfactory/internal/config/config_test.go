// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embeddedgo/factory/egfactory/internal/flash"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	name := writeFile(t, dir, "board.yaml", `
chip: ESP32
flash_mode: qio
flash_freq: 40000000L
flash_size: 4MB
max_app_size: 1280K
partitions: partitions.csv
app: firmware.bin
sections:
  - {offset: 0x1000, path: bootloader.bin}
  - {offset: 32768, path: partitions.bin}
data_dir: data
output: firmware.factory.bin
pad: 0x00
`)
	cfg, err := Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxAppSize != 1280*1024 {
		t.Errorf("max_app_size = %d", cfg.MaxAppSize)
	}
	if len(cfg.Sections) != 2 || cfg.Sections[0].Offset != 0x1000 || cfg.Sections[1].Offset != 0x8000 {
		t.Errorf("sections = %+v", cfg.Sections)
	}
	if cfg.PadByte() != 0 {
		t.Errorf("pad = %#x", cfg.PadByte())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cp := cfg.ChipParams()
	want := ChipParams{Chip: "esp32", FlashMode: "dio", FlashFreq: "40m", FlashSize: "4MB"}
	if cp != want {
		t.Errorf("chip params = %+v, want %+v", cp, want)
	}
	if cfg.Format != "bin" || cfg.Merger != "native" || cfg.SectorSize != 4096 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadUnknownField(t *testing.T) {
	name := writeFile(t, t.TempDir(), "board.yaml", "app: a.bin\nflash_speed: 80m\n")
	if _, err := Load(name); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestLoadBadAddress(t *testing.T) {
	name := writeFile(t, t.TempDir(), "board.yaml", "sections:\n  - {offset: boot, path: a.bin}\n")
	_, err := Load(name)
	if err == nil || !strings.Contains(err.Error(), "bad address") {
		t.Fatalf("got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &BuildConfig{
		Format:     "elf",
		Merger:     "esptool",
		SectorSize: 3000,
		Sections:   []SectionSpec{{Offset: 0x1000}},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, s := range []string{
		"application binary", "output file", `format "elf"`,
		"esptool merger can't produce elf", "power of two", "has no path",
	} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("%q missing in %q", s, err)
		}
	}
}

func TestFlashMode(t *testing.T) {
	for _, tc := range []struct{ mode, mem, want string }{
		{"", "", "dio"},
		{"qio", "qio_qspi", "dio"},
		{"QOUT", "", "dio"},
		{"dio", "", "dio"},
		{"dout", "", "dout"},
		{"qio", "opi_opi", "dout"},
		{"dio", "opi_qspi", "dout"},
	} {
		if got := FlashMode(tc.mode, tc.mem); got != tc.want {
			t.Errorf("FlashMode(%q, %q) = %q, want %q", tc.mode, tc.mem, got, tc.want)
		}
	}
}

func TestFlashFreq(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", "40m"},
		{"40000000L", "40m"},
		{"80000000", "80m"},
		{"80m", "80m"},
		{"26700000L", "26700000l"},
	} {
		if got := FlashFreq(tc.in); got != tc.want {
			t.Errorf("FlashFreq(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPreSections(t *testing.T) {
	dir := t.TempDir()
	boot := writeFile(t, dir, "boot.bin", "boot")
	hex := writeFile(t, dir, "parts.HEX", ":0280000001027B\n:00000001FF\n")
	cfg := &BuildConfig{Sections: []SectionSpec{{0x1000, boot}, {0, hex}}}
	ss, err := cfg.PreSections()
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 2 || ss[0].Path != boot || ss[1].Offset != 0x8000 || len(ss[1].Data) != 2 {
		t.Fatalf("unexpected sections: %v", ss)
	}
}

func TestPreSectionsExtra(t *testing.T) {
	cfg := &BuildConfig{Extra: flash.Sections{flash.DataSection(0xe000, "otadata", []byte{0})}}
	ss, err := cfg.PreSections()
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 1 || ss[0].Name != "otadata" {
		t.Fatalf("unexpected sections: %v", ss)
	}
}

func TestSizeFlag(t *testing.T) {
	var s Size
	if err := s.Set("1280K"); err != nil || s != 0x140000 || s.String() != "1310720" {
		t.Fatalf("Set(1280K): %v, %v", s, err)
	}
	if err := s.Set("lots"); err == nil {
		t.Fatal("bad size accepted")
	}
}

func TestPreSectionsHexOffset(t *testing.T) {
	dir := t.TempDir()
	hex := writeFile(t, dir, "parts.hex", ":0280000001027B\n:00000001FF\n")
	for _, c := range []struct {
		offset Addr
		ok     bool
	}{
		{0, true},
		{0x8000, true},
		{0x1000, false},
	} {
		cfg := &BuildConfig{Sections: []SectionSpec{{c.offset, hex}}}
		ss, err := cfg.PreSections()
		if c.ok {
			if err != nil || len(ss) != 1 || ss[0].Offset != 0x8000 {
				t.Errorf("offset %#x: %v, %v", uint32(c.offset), ss, err)
			}
		} else if err == nil || !strings.Contains(err.Error(), "not at 0x1000") {
			t.Errorf("offset %#x: mismatch not reported: %v", uint32(c.offset), err)
		}
	}
}
