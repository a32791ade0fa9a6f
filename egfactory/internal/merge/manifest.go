// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package merge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/embeddedgo/factory/egfactory/internal/config"
	"github.com/embeddedgo/factory/egfactory/internal/flash"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

// Manifest describes the factory image for the flashing procedure. It is
// stored next to the image in the OUTPUT.json file.
type Manifest struct {
	BuildID  string            `json:"build_id"`
	Format   string            `json:"format"`
	Size     int64             `json:"size"`
	Digest   digest.Digest     `json:"digest"`
	Chip     config.ChipParams `json:"chip"`
	Sections []SectionInfo     `json:"sections"`
}

type SectionInfo struct {
	Offset string        `json:"offset"`
	Size   int64         `json:"size"`
	Name   string        `json:"name"`
	Digest digest.Digest `json:"digest"`
}

// ManifestPath returns the name of the manifest file for the image.
func ManifestPath(image string) string {
	return image + ".json"
}

// buildManifest describes the sections and the image file. The build ID is
// derived from the image digest so identical images get identical manifests.
func buildManifest(ss flash.Sections, image, format string, chip config.ChipParams) (*Manifest, error) {
	m := &Manifest{Format: format, Chip: chip}
	f, err := os.Open(image)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := digest.Canonical.Digester()
	if m.Size, err = io.Copy(d.Hash(), f); err != nil {
		return nil, err
	}
	m.Digest = d.Digest()
	m.BuildID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.Digest)).String()
	for _, s := range ss {
		si, err := sectionInfo(s)
		if err != nil {
			return nil, err
		}
		m.Sections = append(m.Sections, si)
	}
	return m, nil
}

func sectionInfo(s *flash.Section) (si SectionInfo, err error) {
	si.Offset = fmt.Sprintf("%#x", s.Offset)
	si.Name = s.Name
	if s.Path == "" || s.Data != nil {
		si.Size = int64(len(s.Data))
		si.Digest = digest.FromBytes(s.Data)
		return
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return
	}
	defer f.Close()
	d := digest.Canonical.Digester()
	if si.Size, err = io.Copy(d.Hash(), f); err != nil {
		return
	}
	si.Digest = d.Digest()
	return
}

// ReadManifest reads the manifest written for the image.
func ReadManifest(image string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(image))
	if err != nil {
		return nil, err
	}
	m := new(Manifest)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestPath(image), err)
	}
	return m, nil
}

func (m *Manifest) write(p *pendingFile) error {
	enc := json.NewEncoder(p)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
