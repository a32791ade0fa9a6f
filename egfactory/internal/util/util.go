// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// FatalError prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// NewLogger returns the logger used by the commands. It writes to the
// standard error. Debug messages are printed in the verbose mode, quiet
// limits the output to warnings and errors.
func NewLogger(verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(h)
}

// OutName infers the name of the output file from the name of the input file
// if outName is an empty string: the inSuffix of inName is replaced by
// outSuffix.
func OutName(outName, inName, inSuffix, outSuffix string) string {
	if outName != "" {
		return outName
	}
	inName = filepath.Clean(inName)
	ext := filepath.Ext(inName)
	if inSuffix == "" || strings.EqualFold(ext, inSuffix) {
		inName = strings.TrimSuffix(inName, ext)
	}
	return inName + outSuffix
}
