// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parts

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/embeddedgo/factory/egfactory/internal/compose"
	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/layout"
	"github.com/embeddedgo/factory/egfactory/internal/parttab"
	"github.com/embeddedgo/factory/egfactory/internal/util"
)

const Descr = "print the partition table and the resolved image layout"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] PARTITIONS.csv\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	var cfg config.BuildConfig
	fs.StringVar(&cfg.AppPart, "app-part", "", "`name` of the application partition (default app0)")
	fs.StringVar(&cfg.FSPart, "fs-part", "", "`name` of the filesystem partition (default spiffs)")
	fs.Var(&cfg.MaxAppSize, "max", "board limit of the application `size`")
	cfg.SectorSize = config.DefaultSectorSize
	fs.Var(&cfg.SectorSize, "sector", "flash sector `size` used to check the partition alignment")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	log := util.NewLogger(false, false)
	tab, err := compose.ReadTable(fs.Arg(0), log)
	util.FatalErr("", err)
	printTable(os.Stdout, tab)
	l, err := layout.Resolve(tab, compose.Identify(&cfg), uint32(cfg.SectorSize))
	util.FatalErr("", err)
	fmt.Println()
	printLayout(os.Stdout, l, uint64(cfg.MaxAppSize))
}

func printTable(w io.Writer, tab *parttab.Table) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tType\tSubType\tOffset\tSize\tEnd\tFlags")
	for _, e := range tab.Sorted() {
		fmt.Fprintf(
			tw, "%s\t%s\t%s\t%#x\t%#x\t%#x\t%s\n",
			e.Name, e.TypeName, e.Subtype, e.Offset, e.Size, e.End(), e.Flags,
		)
	}
	tw.Flush()
	for _, s := range tab.Skipped {
		fmt.Fprintf(w, "skipped line %d (%s): %s\n", s.Entry.Line, s.Entry.Name, s.Reason)
	}
}

func printLayout(w io.Writer, l *layout.Layout, boardMax uint64) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	app := l.AppName
	if app == "" {
		app = "(default)"
	}
	fmt.Fprintf(tw, "application\t%s\t%#x\tmax %d bytes\n", app, l.AppOffset, l.MaxAppSize(boardMax))
	if l.HasFS() {
		fmt.Fprintf(tw, "filesystem\t%s\t%#x\t%d bytes\n", l.FSName, *l.FSOffset, *l.FSSize)
	} else {
		fmt.Fprintln(tw, "filesystem\t(none)")
	}
	tw.Flush()
}
