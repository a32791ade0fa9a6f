// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsimage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Mkfs packs directories using an external tool that accepts the mklittlefs
// command line (mklittlefs, mkspiffs, mkfatfs):
//
//	TOOL -c DIR -s SIZE IMAGE
type Mkfs struct {
	Tool     string   // command name or path
	Fallback []string // locations tried if Tool isn't in PATH
	Args     []string // additional arguments (e.g. -b 4096 -p 256)
}

// NewMkfs returns the packer for the tool that falls back to the location
// used by the PlatformIO package manager.
func NewMkfs(tool string) *Mkfs {
	m := &Mkfs{Tool: tool}
	if home, err := os.UserHomeDir(); err == nil {
		name := filepath.Base(tool)
		m.Fallback = append(
			m.Fallback,
			filepath.Join(home, ".platformio", "packages", "tool-"+name, name),
		)
	}
	return m
}

// Path returns the path to the tool executable.
func (m *Mkfs) Path() (string, error) {
	path, err := exec.LookPath(m.Tool)
	if err == nil {
		return path, nil
	}
	for _, fb := range m.Fallback {
		fi, err := os.Stat(fb)
		if err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0 {
			return fb, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, m.Tool)
}

func (m *Mkfs) Pack(dir string, size uint32) ([]byte, error) {
	tool, err := m.Path()
	if err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "egfactory-fs-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)
	img := filepath.Join(tmp, "fs.bin")
	args := append([]string{"-c", dir, "-s", strconv.FormatUint(uint64(size), 10)}, m.Args...)
	args = append(args, img)
	var out bytes.Buffer
	cmd := exec.Command(tool, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		var ee *exec.ExitError
		if errors.As(err, &ee) && msg != "" {
			return nil, fmt.Errorf("%s: %v: %s", filepath.Base(tool), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(tool), err)
	}
	data, err := os.ReadFile(img)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s didn't create the image", filepath.Base(tool))
	}
	return data, err
}
