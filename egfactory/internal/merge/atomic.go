// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"os"
	"path/filepath"
)

// pendingFile is a temporary file created next to its final location. It
// replaces the destination only after commit so a failed or interrupted
// build leaves the previous output untouched.
type pendingFile struct {
	f    *os.File
	tmp  string
	dest string
}

func createPending(dest string, perm os.FileMode) (*pendingFile, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, err
	}
	p := &pendingFile{f, f.Name(), dest}
	if err := f.Chmod(perm); err != nil {
		p.abort()
		return nil, err
	}
	return p, nil
}

func (p *pendingFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// close flushes the file to the disk. It can be called more than once.
func (p *pendingFile) close() error {
	f := p.f
	if f == nil {
		return nil
	}
	p.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// commit atomically replaces the destination with the temporary file.
func (p *pendingFile) commit() error {
	if err := p.close(); err != nil {
		os.Remove(p.tmp)
		return err
	}
	if err := os.Rename(p.tmp, p.dest); err != nil {
		os.Remove(p.tmp)
		return err
	}
	// fsync dir so rename is durable across power loss
	d, err := os.Open(filepath.Dir(p.dest))
	if err != nil {
		return err
	}
	defer d.Close()
	d.Sync()
	return nil
}

// abort removes the temporary file.
func (p *pendingFile) abort() {
	p.close()
	os.Remove(p.tmp)
}

// WriteFile writes data to the named file like os.WriteFile but the file is
// replaced only after all data has been written.
func WriteFile(name string, data []byte, perm os.FileMode) error {
	p, err := createPending(name, perm)
	if err != nil {
		return err
	}
	defer p.abort()
	if _, err := p.Write(data); err != nil {
		return err
	}
	return p.commit()
}
