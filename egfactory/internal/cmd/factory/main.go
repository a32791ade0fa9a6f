// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package factory

import (
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/factory/egfactory/internal/compose"
	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/embeddedgo/factory/egfactory/internal/util"
)

const Descr = "merge bootloader, application and filesystem into a factory image"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] [APP]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	var o config.BuildConfig
	cfgFile := fs.String("config", "", "board configuration `file` (YAML)")
	fs.StringVar(&o.Partitions, "parts", "", "partition table `file` (CSV)")
	fs.StringVar(&o.App, "app", "", "application binary `file`")
	fs.StringVar(&o.AppPart, "app-part", "", "`name` of the application partition (default app0)")
	fs.StringVar(&o.FSPart, "fs-part", "", "`name` of the filesystem partition (default spiffs)")
	inc := fs.String(
		"inc", "",
		"binary files to be included BIN1:ADDR1[,BIN2:ADDR2[,...]]",
	)
	fs.StringVar(&o.DataDir, "data", "", "filesystem content `directory`")
	fs.StringVar(&o.Output, "o", "", "output `file` (default APP.factory.FORMAT)")
	fs.StringVar(&o.Chip, "chip", "", "target chip (esp32, esp32s3, ...)")
	fs.StringVar(&o.FlashMode, "mode", "", "flash `mode` (qio, qout, dio, dout)")
	fs.StringVar(&o.FlashFreq, "freq", "", "flash `frequency` (40m, 80m, 40000000L)")
	fs.StringVar(&o.FlashSize, "size", "", "flash `size` (4MB, 16MB, keep)")
	fs.StringVar(&o.MemoryType, "memtype", "", "flash and PSRAM memory `type` (qio_qspi, opi_opi, ...)")
	fs.Var(&o.MaxAppSize, "max", "board limit of the application `size`")
	fs.Var(&o.SectorSize, "sector", "flash sector `size` used to check the partition alignment")
	fs.StringVar(&o.Format, "format", "", "output `format`: bin, hex or uf2")
	pad := fs.Uint(
		"pad", 0xff,
		"pad `byte` used to fill gaps between sections",
	)
	fs.StringVar(&o.Merger, "merger", "", "merger: native or esptool")
	fs.StringVar(&o.Esptool, "esptool", "", "esptool `command` used by the esptool merger")
	fs.StringVar(&o.FSTool, "mkfs", "", "filesystem image `tool` (mklittlefs, mkspiffs)")
	verbose := fs.Bool("v", false, "print debug messages")
	quiet := fs.Bool("quiet", false, "print warnings and errors only")
	fs.Parse(args)
	if fs.NArg() > 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg := new(config.BuildConfig)
	if *cfgFile != "" {
		var err error
		cfg, err = config.Load(*cfgFile)
		util.FatalErr("", err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "parts":
			cfg.Partitions = o.Partitions
		case "app":
			cfg.App = o.App
		case "app-part":
			cfg.AppPart = o.AppPart
		case "fs-part":
			cfg.FSPart = o.FSPart
		case "data":
			cfg.DataDir = o.DataDir
		case "o":
			cfg.Output = o.Output
		case "chip":
			cfg.Chip = o.Chip
		case "mode":
			cfg.FlashMode = o.FlashMode
		case "freq":
			cfg.FlashFreq = o.FlashFreq
		case "size":
			cfg.FlashSize = o.FlashSize
		case "memtype":
			cfg.MemoryType = o.MemoryType
		case "max":
			cfg.MaxAppSize = o.MaxAppSize
		case "sector":
			cfg.SectorSize = o.SectorSize
		case "format":
			cfg.Format = o.Format
		case "pad":
			if *pad > 0xff {
				util.Fatal("pad byte %#x out of range", *pad)
			}
			b := uint8(*pad)
			cfg.Pad = &b
		case "merger":
			cfg.Merger = o.Merger
		case "esptool":
			cfg.Esptool = o.Esptool
		case "mkfs":
			cfg.FSTool = o.FSTool
		}
	})
	if fs.NArg() == 1 {
		cfg.App = fs.Arg(0)
	}
	if *inc != "" {
		isec, err := flash.ParseSections(*inc)
		util.FatalErr("inc", err)
		cfg.Extra = append(cfg.Extra, isec...)
	}
	cfg.SetDefaults()
	if cfg.App != "" {
		cfg.Output = util.OutName(cfg.Output, cfg.App, ".bin", ".factory."+cfg.Format)
	}
	util.FatalErr("config", cfg.Validate())

	log := util.NewLogger(*verbose, *quiet)
	c, err := compose.New(cfg, log)
	util.FatalErr("", err)
	_, err = c.Compose(cfg)
	util.FatalErr("factory", err)
}
