// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package merge writes the factory image: all sections at their flash
// offsets in one file that can be flashed starting at offset 0.
//
// The image replaces the output file only when it has been written
// completely. A manifest with the flash parameters and the section digests
// is written next to it (see Manifest).
package merge

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/marcinbor85/gohex"
)

// A Merger writes the sections to the output file. The sections must be
// sorted by offset. Overlapping sections are reported as *flash.OverlapError.
type Merger interface {
	Merge(ss flash.Sections, output string, chip config.ChipParams) error
}

// New returns the merger selected by the configuration.
func New(cfg *config.BuildConfig, log *slog.Logger) (Merger, error) {
	switch cfg.Merger {
	case "", "native":
		return &Native{Format: cfg.Format, Pad: cfg.PadByte(), Logger: log}, nil
	case "esptool":
		return &Esptool{Command: cfg.Esptool, Logger: log}, nil
	}
	return nil, fmt.Errorf("unknown merger %q", cfg.Merger)
}

// Native writes the image without any external tools.
//
// The bin format contains the flattened flash content from offset 0 to the
// end of the last section. The gaps are filled with the Pad byte (0xff
// matches the erased flash so the gaps don't need to be programmed at all).
// The hex format contains the sections only, the gaps are left out. The uf2
// format contains the flattened bin image split into UF2 blocks.
type Native struct {
	Format string // bin (default), hex or uf2
	Pad    byte
	Logger *slog.Logger
}

func (m *Native) Merge(ss flash.Sections, output string, chip config.ChipParams) error {
	end, err := ss.Check()
	if err != nil {
		return err
	}
	format := m.Format
	if format == "" {
		format = "bin"
	}
	p, err := createPending(output, 0o644)
	if err != nil {
		return err
	}
	defer p.abort()
	w := bufio.NewWriterSize(p, 64*1024)
	switch format {
	case "bin":
		_, err = ss.Flatten(w, m.Pad)
	case "hex":
		err = writeHex(w, ss)
	case "uf2":
		err = writeUF2(w, ss, m.Pad, chip.Chip, end)
	default:
		err = fmt.Errorf("unknown output format %q", format)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", output, err)
	}
	if err := p.close(); err != nil {
		return fmt.Errorf("%s: %w", output, err)
	}
	return publish(p, ss, format, chip, logger(m.Logger))
}

func writeHex(w io.Writer, ss flash.Sections) error {
	mem := gohex.NewMemory()
	for _, s := range ss {
		if err := s.Load(); err != nil {
			return err
		}
		if len(s.Data) == 0 {
			continue
		}
		if err := mem.AddBinary(s.Offset, s.Data); err != nil {
			return fmt.Errorf("section %s: %w", s.Name, err)
		}
	}
	return mem.DumpIntelHex(w, 16)
}

func writeUF2(w io.Writer, ss flash.Sections, pad byte, chip string, size uint64) error {
	family, err := uf2Family(chip)
	if err != nil {
		return err
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := ss.Flatten(buf, pad); err != nil {
		return err
	}
	u := newUF2Writer(w, 0, uf2FamilyIDPresent, family, buf.Len(), pad)
	if _, err := u.Write(buf.Bytes()); err != nil {
		return err
	}
	return u.Flush()
}

// publish writes the manifest and moves the image and the manifest to their
// final locations.
func publish(p *pendingFile, ss flash.Sections, format string, chip config.ChipParams, log *slog.Logger) error {
	m, err := buildManifest(ss, p.tmp, format, chip)
	if err != nil {
		return err
	}
	mp, err := createPending(ManifestPath(p.dest), 0o644)
	if err != nil {
		return err
	}
	defer mp.abort()
	if err := m.write(mp); err != nil {
		return fmt.Errorf("%s: %w", mp.dest, err)
	}
	if err := p.commit(); err != nil {
		return fmt.Errorf("%s: %w", p.dest, err)
	}
	if err := mp.commit(); err != nil {
		return fmt.Errorf("%s: %w", mp.dest, err)
	}
	log.Info(
		"factory image written",
		"path", p.dest, "format", format, "size", m.Size, "digest", m.Digest,
	)
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
