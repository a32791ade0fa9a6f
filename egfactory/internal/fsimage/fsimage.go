// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsimage builds the filesystem partition image from a directory.
//
// The filesystem format itself is produced by a Packer, usually an external
// tool like mklittlefs or mkspiffs.
package fsimage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/spf13/afero"
)

var (
	ErrToolNotFound = errors.New("filesystem tool not found")
	ErrTooLarge     = errors.New("filesystem content too large")
)

// BuildError describes a failed filesystem build.
type BuildError struct {
	Dir  string
	Size uint32 // partition size
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("filesystem image of %s (%d bytes): %v", e.Dir, e.Size, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// A Packer serializes the directory tree into a filesystem image. The
// returned image must not be longer than size. Shorter images are padded by
// the Builder.
type Packer interface {
	Pack(dir string, size uint32) ([]byte, error)
}

// Builder checks the source directory and runs the packer.
type Builder struct {
	Fs     afero.Fs
	Packer Packer
	Logger *slog.Logger
}

// NewBuilder returns a builder that reads the host filesystem.
func NewBuilder(p Packer) *Builder {
	return &Builder{Fs: afero.NewOsFs(), Packer: p, Logger: slog.Default()}
}

// Build returns the filesystem image of exactly size bytes. It returns nil
// and no error if dir doesn't exist or contains no files, which means that
// there is nothing to write to the filesystem partition.
func (b *Builder) Build(dir string, size uint32) ([]byte, error) {
	fail := func(err error) ([]byte, error) {
		return nil, &BuildError{dir, size, err}
	}
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	files, total, err := b.scan(dir)
	if err != nil {
		return fail(err)
	}
	if files == 0 {
		log.Info("no files added, filesystem partition left untouched", "dir", dir)
		return nil, nil
	}
	log.Info(
		"creating filesystem image",
		"dir", dir, "files", files, "bytes", total, "size_kib", size/1024,
	)
	if total > uint64(size) {
		return fail(fmt.Errorf("%w: %d bytes of files > %d", ErrTooLarge, total, size))
	}
	if b.Packer == nil {
		return fail(ErrToolNotFound)
	}
	img, err := b.Packer.Pack(dir, size)
	if err != nil {
		return fail(err)
	}
	if len(img) > int(size) {
		return fail(fmt.Errorf("%w: image has %d bytes > %d", ErrTooLarge, len(img), size))
	}
	if n := int(size) - len(img); n > 0 {
		img = append(img, flash.PadBytes(nil, n, flash.ErasedFlash)...)
	}
	return img, nil
}

// scan counts the regular files in dir and their total size.
func (b *Builder) scan(dir string) (files int, total uint64, err error) {
	fsys := b.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	ok, err := afero.DirExists(fsys, dir)
	if err != nil || !ok {
		return 0, 0, err
	}
	if _, isOS := fsys.(*afero.OsFs); isOS {
		// Walk doesn't descend into a linked root directory.
		if dir, err = filepath.EvalSymlinks(dir); err != nil {
			return 0, 0, err
		}
	}
	err = afero.Walk(fsys, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			// The packer follows links, count what it will store.
			if fi, err = fsys.Stat(path); err != nil {
				return err
			}
			if fi.IsDir() {
				return fmt.Errorf("%s: symbolic link to a directory", path)
			}
		}
		switch {
		case fi.Mode().IsRegular():
			files++
			total += uint64(fi.Size())
		case !fi.IsDir():
			return fmt.Errorf("%s: unsupported file type %v", path, fi.Mode().Type())
		}
		return nil
	})
	return
}
