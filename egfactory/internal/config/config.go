// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the static build configuration of a factory image.
//
// The configuration is usually read from a YAML board file:
//
//	chip: esp32
//	flash_mode: qio
//	flash_freq: 40000000L
//	flash_size: 4MB
//	max_app_size: 0x140000
//	partitions: boards/partitions/esp32_4M.csv
//	app: .build/esp32/firmware.bin
//	sections:
//	  - {offset: 0x1000, path: bootloader_dio_40m.bin}
//	  - {offset: 0x8000, path: .build/esp32/partitions.bin}
//	  - {offset: 0xe000, path: boot_app0.bin}
//	data_dir: data
//	output: .build/esp32/firmware.factory.bin
//
// and then amended by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/embeddedgo/factory/egfactory/internal/parttab"
	"go.yaml.in/yaml/v3"
)

// Addr is a flash address that can be written in hex in YAML files.
type Addr uint32

func (a *Addr) UnmarshalYAML(n *yaml.Node) error {
	u, err := flash.ParseAddr(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: bad address %q", n.Line, n.Value)
	}
	*a = Addr(u)
	return nil
}

// Size is a byte count that accepts the K/M suffixes in YAML files.
type Size uint64

func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	u, err := parttab.ParseSize(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: bad size %q", n.Line, n.Value)
	}
	*s = Size(u)
	return nil
}

func (s Size) String() string { return strconv.FormatUint(uint64(s), 10) }

func (s *Size) Set(v string) error {
	u, err := parttab.ParseSize(v)
	if err != nil {
		return err
	}
	*s = Size(u)
	return nil
}

// SectionSpec is a binary file written to the flash before the application.
// Intel HEX files carry their own addresses: an unset (zero) Offset accepts
// them, any other Offset must match the start of the HEX data.
type SectionSpec struct {
	Offset Addr   `yaml:"offset"`
	Path   string `yaml:"path"`
}

// BuildConfig describes one factory image.
type BuildConfig struct {
	Chip       string `yaml:"chip"`
	FlashMode  string `yaml:"flash_mode"`
	FlashFreq  string `yaml:"flash_freq"`
	FlashSize  string `yaml:"flash_size"`
	MemoryType string `yaml:"memory_type"`
	SectorSize Size   `yaml:"sector_size"`
	MaxAppSize Size   `yaml:"max_app_size"` // 0 means no board limit

	Partitions string        `yaml:"partitions"`    // partition table (CSV)
	AppPart    string        `yaml:"app_partition"` // default app0
	FSPart     string        `yaml:"fs_partition"`  // default spiffs
	App        string        `yaml:"app"`           // application binary
	Sections   []SectionSpec `yaml:"sections"`      // bootloader, partition table, ...
	DataDir    string        `yaml:"data_dir"`      // filesystem content, may not exist
	Output     string        `yaml:"output"`

	// Extra sections, usually given on the command line.
	Extra flash.Sections `yaml:"-"`

	Format  string `yaml:"format"`  // bin, hex or uf2
	Pad     *uint8 `yaml:"pad"`     // gap filler, 0xff if nil
	FSTool  string `yaml:"fs_tool"` // filesystem packer (mklittlefs, mkspiffs)
	Merger  string `yaml:"merger"`  // native or esptool
	Esptool string `yaml:"esptool"` // esptool command for the esptool merger
}

const (
	DefaultSectorSize = 4096
	DefaultFormat     = "bin"
	DefaultMerger     = "native"
	DefaultFSTool     = "mklittlefs"
	DefaultEsptool    = "esptool.py"
)

// Load reads the configuration from the YAML file. Unknown fields are
// reported as errors.
func Load(name string) (*BuildConfig, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg := new(BuildConfig)
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// SetDefaults fills the unset optional fields.
func (c *BuildConfig) SetDefaults() {
	if c.SectorSize == 0 {
		c.SectorSize = DefaultSectorSize
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Merger == "" {
		c.Merger = DefaultMerger
	}
	if c.FSTool == "" {
		c.FSTool = DefaultFSTool
	}
	if c.Esptool == "" {
		c.Esptool = DefaultEsptool
	}
	if c.Chip == "" {
		c.Chip = "esp32"
	}
}

// PadByte returns the byte used to fill the gaps between sections.
func (c *BuildConfig) PadByte() byte {
	if c.Pad == nil {
		return flash.ErasedFlash
	}
	return *c.Pad
}

// Validate checks that all required fields are set and have sane values.
func (c *BuildConfig) Validate() error {
	var errs []error
	if c.App == "" {
		errs = append(errs, errors.New("application binary not specified"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output file not specified"))
	}
	switch c.Format {
	case "", "bin", "hex", "uf2":
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Format))
	}
	switch c.Merger {
	case "", "native":
	case "esptool":
		if c.Format != "" && c.Format != "bin" {
			errs = append(errs, fmt.Errorf("esptool merger can't produce %s files", c.Format))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown merger %q", c.Merger))
	}
	if s := c.SectorSize; s != 0 && s&(s-1) != 0 {
		errs = append(errs, fmt.Errorf("sector size %d is not a power of two", s))
	}
	for i, s := range c.Sections {
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("section %d (%#x) has no path", i, s.Offset))
		}
	}
	return errors.Join(errs...)
}

// PreSections returns the sections written before the application.
func (c *BuildConfig) PreSections() (flash.Sections, error) {
	var ss flash.Sections
	for _, s := range c.Sections {
		if strings.EqualFold(filepath.Ext(s.Path), ".hex") {
			hs, err := flash.ReadHex(s.Path)
			if err != nil {
				return nil, err
			}
			if s.Offset != 0 && len(hs) != 0 && hs[0].Offset != uint32(s.Offset) {
				return nil, fmt.Errorf(
					"%s: data starts at %#x, not at %#x", s.Path, hs[0].Offset, uint32(s.Offset),
				)
			}
			ss = append(ss, hs...)
			continue
		}
		ss = append(ss, flash.FileSection(uint32(s.Offset), s.Path))
	}
	return append(ss, c.Extra...), nil
}
