// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"strconv"
	"strings"
)

// ChipParams are the flash parameters stored in the image header by the
// flashing tool. They don't change the layout of the factory image.
type ChipParams struct {
	Chip      string `json:"chip"`
	FlashMode string `json:"flash_mode"`
	FlashFreq string `json:"flash_freq"`
	FlashSize string `json:"flash_size"`
}

// ChipParams returns the normalized flash parameters.
func (c *BuildConfig) ChipParams() ChipParams {
	chip := strings.ToLower(strings.TrimSpace(c.Chip))
	if chip == "" {
		chip = "esp32"
	}
	size := strings.TrimSpace(c.FlashSize)
	if size == "" {
		size = "keep"
	}
	return ChipParams{
		Chip:      chip,
		FlashMode: FlashMode(c.FlashMode, c.MemoryType),
		FlashFreq: FlashFreq(c.FlashFreq),
		FlashSize: size,
	}
}

// FlashMode returns the flash mode that the bootloader can start in. The
// quad modes are downgraded to dio (the second stage bootloader switches to
// qio itself) and octal flash/PSRAM always use dout.
func FlashMode(mode, memoryType string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", "qio", "qout":
		mode = "dio"
	}
	switch strings.ToLower(memoryType) {
	case "opi_opi", "opi_qspi":
		mode = "dout"
	}
	return mode
}

// FlashFreq converts the frequency written as a C constant (40000000L) or
// in Hz to the esptool form (40m). Values already in that form are returned
// unchanged.
func FlashFreq(freq string) string {
	freq = strings.ToLower(strings.TrimSpace(freq))
	if freq == "" {
		return "40m"
	}
	n := strings.TrimRight(freq, "lu")
	hz, err := strconv.ParseUint(n, 10, 64)
	if err != nil {
		return freq
	}
	if hz%1000000 == 0 {
		return strconv.FormatUint(hz/1000000, 10) + "m"
	}
	return freq
}
