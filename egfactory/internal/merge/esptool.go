// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/flash"
)

// Esptool merges the sections using the merge_bin command of esptool.py so
// the image is exactly the same as the one produced by the Espressif tools
// (esptool patches the flash parameters into the bootloader header).
type Esptool struct {
	Command string // esptool command, e.g. "esptool.py" or "python3 -m esptool"
	Logger  *slog.Logger
}

func (m *Esptool) Merge(ss flash.Sections, output string, chip config.ChipParams) error {
	if _, err := ss.Check(); err != nil {
		return err
	}
	argv := strings.Fields(m.Command)
	if len(argv) == 0 {
		argv = []string{config.DefaultEsptool}
	}
	tool, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("esptool: %w", err)
	}
	p, err := createPending(output, 0o644)
	if err != nil {
		return err
	}
	defer p.abort()
	if err := p.close(); err != nil {
		return err
	}
	// esptool reads files only, spill the in-memory sections.
	spill, err := os.MkdirTemp("", "egfactory-merge-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(spill)

	args := make([]string, 0, len(argv)+10+2*len(ss))
	args = append(args, argv[1:]...)
	args = append(args,
		"--chip", chip.Chip,
		"merge_bin",
		"-o", p.tmp,
		"--flash_mode", chip.FlashMode,
		"--flash_freq", chip.FlashFreq,
		"--flash_size", chip.FlashSize,
	)
	for i, s := range ss {
		path := s.Path
		if path == "" {
			path = filepath.Join(spill, fmt.Sprintf("section%d.bin", i))
			if err := os.WriteFile(path, s.Data, 0o644); err != nil {
				return err
			}
		}
		args = append(args, fmt.Sprintf("%#x", s.Offset), path)
	}
	log := logger(m.Logger)
	log.Debug("running esptool", "cmd", tool, "args", strings.Join(args, " "))
	var out bytes.Buffer
	cmd := exec.Command(tool, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		var ee *exec.ExitError
		if errors.As(err, &ee) && msg != "" {
			return fmt.Errorf("esptool merge_bin: %v: %s", err, msg)
		}
		return fmt.Errorf("esptool merge_bin: %w", err)
	}
	return publish(p, ss, "bin", chip, log)
}
