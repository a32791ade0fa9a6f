// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsimage

import (
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/factory/egfactory/internal/compose"
	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/fsimage"
	"github.com/embeddedgo/factory/egfactory/internal/layout"
	"github.com/embeddedgo/factory/egfactory/internal/merge"
	"github.com/embeddedgo/factory/egfactory/internal/util"
)

const Descr = "build the filesystem partition image from a directory"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] DIR [IMAGE]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	parts := fs.String("parts", "", "partition table `file` (CSV)")
	part := fs.String("fs-part", "spiffs", "`name` of the filesystem partition")
	var size config.Size
	fs.Var(&size, "s", "image `size`, overrides the partition size")
	tool := fs.String("mkfs", config.DefaultFSTool, "filesystem image `tool` (mklittlefs, mkspiffs)")
	verbose := fs.Bool("v", false, "print debug messages")
	fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		os.Exit(1)
	}
	dir := fs.Arg(0)
	out := util.OutName(fs.Arg(1), dir, "", ".fs.bin")
	log := util.NewLogger(*verbose, false)

	if size == 0 {
		if *parts == "" {
			util.Fatal("%s: neither the image size nor the partition table given", cmd)
		}
		tab, err := compose.ReadTable(*parts, log)
		util.FatalErr("", err)
		l, err := layout.Resolve(
			tab,
			layout.Identify{FS: layout.ByName(*part)},
			config.DefaultSectorSize,
		)
		util.FatalErr("", err)
		if !l.HasFS() {
			util.Fatal("%s: no %s partition in %s", cmd, *part, *parts)
		}
		size = config.Size(*l.FSSize)
	}
	if uint64(size) > 1<<32-1 {
		util.Fatal("%s: image size %d too large", cmd, size)
	}
	b := fsimage.NewBuilder(fsimage.NewMkfs(*tool))
	b.Logger = log
	img, err := b.Build(dir, uint32(size))
	util.FatalErr("", err)
	if img == nil {
		util.Warn("%s: no files in %s, image not created", cmd, dir)
		return
	}
	util.FatalErr("", merge.WriteFile(out, img, 0o644))
	log.Info("filesystem image written", "path", out, "size", len(img))
}
