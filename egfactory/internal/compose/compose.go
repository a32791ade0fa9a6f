// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compose runs the whole factory image build: it reads the partition
// table, places the application and the filesystem, builds the filesystem
// image, checks the application size and merges all sections into the
// output file.
package compose

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/embeddedgo/factory/egfactory/internal/fsimage"
	"github.com/embeddedgo/factory/egfactory/internal/layout"
	"github.com/embeddedgo/factory/egfactory/internal/merge"
	"github.com/embeddedgo/factory/egfactory/internal/parttab"
)

// Build steps reported in StepError.
const (
	StepConfig   = "config"
	StepParttab  = "parttab"
	StepLayout   = "layout"
	StepFSImage  = "fsimage"
	StepSize     = "size"
	StepSections = "sections"
	StepMerge    = "merge"
)

// StepError tells which build step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// Result describes the written image.
type Result struct {
	Layout   *layout.Layout
	Sections flash.Sections // sorted by offset
	Output   string
}

// Composer builds factory images. A nil matcher in Identify is replaced by
// the one from layout.DefaultIdentify.
type Composer struct {
	FS       *fsimage.Builder
	Merger   merge.Merger
	Identify layout.Identify
	Logger   *slog.Logger
}

// New returns the composer configured for cfg: the filesystem packer is
// cfg.FSTool and the merger is selected by cfg.Merger and cfg.Format.
func New(cfg *config.BuildConfig, log *slog.Logger) (*Composer, error) {
	m, err := merge.New(cfg, log)
	if err != nil {
		return nil, err
	}
	b := fsimage.NewBuilder(fsimage.NewMkfs(cfg.FSTool))
	b.Logger = log
	return &Composer{FS: b, Merger: m, Identify: Identify(cfg), Logger: log}, nil
}

// Identify returns the partition matchers for the partition names set in
// cfg. Unset names default to app0 and spiffs.
func Identify(cfg *config.BuildConfig) layout.Identify {
	id := layout.DefaultIdentify
	if cfg.AppPart != "" {
		id.App = layout.ByName(cfg.AppPart)
	}
	if cfg.FSPart != "" {
		id.FS = layout.ByName(cfg.FSPart)
	}
	return id
}

// Compose writes the factory image described by cfg. It stops at the first
// failing step.
func (c *Composer) Compose(cfg *config.BuildConfig) (*Result, error) {
	fail := func(step string, err error) (*Result, error) {
		return nil, &StepError{step, err}
	}
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return fail(StepConfig, err)
	}

	tab, err := ReadTable(cfg.Partitions, log)
	if err != nil {
		return fail(StepParttab, err)
	}

	id := c.Identify
	if id.App == nil {
		id.App = layout.DefaultIdentify.App
	}
	if id.FS == nil {
		id.FS = layout.DefaultIdentify.FS
	}
	l, err := layout.Resolve(tab, id, uint32(cfg.SectorSize))
	if err != nil {
		return fail(StepLayout, err)
	}
	log.Debug("layout resolved", "app", l.AppName, "app_offset", hex(l.AppOffset), "app_size", l.AppSize)

	var fsData []byte
	switch {
	case !l.HasFS():
		log.Debug("no filesystem partition")
	case cfg.DataDir == "":
		log.Debug("no filesystem directory")
	case c.FS == nil:
		return fail(StepFSImage, fsimage.ErrToolNotFound)
	default:
		fsData, err = c.FS.Build(cfg.DataDir, *l.FSSize)
		if err != nil {
			return fail(StepFSImage, err)
		}
	}

	fi, err := os.Stat(cfg.App)
	if err != nil {
		return fail(StepSize, err)
	}
	if limit := l.MaxAppSize(uint64(cfg.MaxAppSize)); limit == 0 {
		log.Warn("application size not checked, no partition size or board limit", "app", cfg.App)
	} else if err := layout.Validate(uint64(fi.Size()), limit); err != nil {
		return fail(StepSize, err)
	} else {
		log.Info(
			"application size",
			"bytes", fi.Size(), "max", limit,
			"used", fmt.Sprintf("%.1f%%", float64(fi.Size())*100/float64(limit)),
		)
	}

	ss, err := cfg.PreSections()
	if err != nil {
		return fail(StepSections, err)
	}
	ss = append(ss, flash.FileSection(l.AppOffset, cfg.App))
	if fsData != nil {
		ss = append(ss, flash.DataSection(*l.FSOffset, fsSectionName(l, cfg), fsData))
	}
	ss.SortByOffset()
	if _, err := ss.Check(); err != nil {
		return fail(StepSections, err)
	}
	for _, s := range ss {
		log.Info("section", "offset", hex(s.Offset), "file", s.Name)
	}

	if c.Merger == nil {
		return fail(StepMerge, errors.New("no merger"))
	}
	if err := c.Merger.Merge(ss, cfg.Output, cfg.ChipParams()); err != nil {
		return fail(StepMerge, err)
	}
	return &Result{Layout: l, Sections: ss, Output: cfg.Output}, nil
}

// ReadTable reads the partition table file and logs the rows that were
// skipped. An empty name means no partition table, all defaults apply.
func ReadTable(name string, log *slog.Logger) (*parttab.Table, error) {
	if name == "" {
		log.Warn("no partition table, using the default application offset")
		return new(parttab.Table), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tab, err := parttab.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range tab.Skipped {
		log.Warn(
			"partition table row skipped",
			"file", name, "line", s.Entry.Line, "name", s.Entry.Name, "reason", s.Reason,
		)
	}
	return tab, nil
}

func fsSectionName(l *layout.Layout, cfg *config.BuildConfig) string {
	return fmt.Sprintf("%s (%s)", filepath.Base(filepath.Clean(cfg.DataDir)), l.FSName)
}

func hex(u uint32) string {
	return fmt.Sprintf("%#x", u)
}
