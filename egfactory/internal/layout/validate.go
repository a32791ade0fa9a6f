// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import "fmt"

// SizeError is returned by Validate if a binary doesn't fit its space.
type SizeError struct {
	What   string
	Actual uint64
	Max    uint64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s too large: %d > %d", e.What, e.Actual, e.Max)
}

// Validate returns *SizeError if actual > maxSize.
func Validate(actual, maxSize uint64) error {
	return ValidateWhat("application binary", actual, maxSize)
}

// ValidateWhat is like Validate but allows to name the checked binary.
func ValidateWhat(what string, actual, maxSize uint64) error {
	if actual > maxSize {
		return &SizeError{what, actual, maxSize}
	}
	return nil
}
