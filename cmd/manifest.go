// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type manifest struct {
	Version string         `yaml:"version"`
	Records int64          `yaml:"records"`
	Shards  int            `yaml:"shards"`
	Bytes   int64          `yaml:"bytes"`
	Files   []manifestFile `yaml:"files"`
}

type manifestFile struct {
	Path     string `yaml:"path"`
	Key      string `yaml:"key"`
	Sequence int    `yaml:"sequence"`
	Rows     int64  `yaml:"rows"`
	Bytes    int64  `yaml:"bytes"`
	Aborted  bool   `yaml:"aborted,omitempty"`
	Object   string `yaml:"object,omitempty"`
}

func buildManifest(res *splitResult) manifest {
	objects := make(map[string]string, len(res.Uploaded))
	for _, u := range res.Uploaded {
		objects[u.Destination] = u.Key
	}

	m := manifest{
		Version: Version(),
		Records: res.Stats.Records,
		Shards:  res.Stats.Shards,
		Bytes:   res.Bytes,
		Files:   make([]manifestFile, 0, len(res.Files)),
	}
	for _, f := range res.Files {
		m.Files = append(m.Files, manifestFile{
			Path:     f.Destination,
			Key:      f.Key,
			Sequence: f.Sequence,
			Rows:     f.Rows,
			Bytes:    f.Bytes,
			Aborted:  f.Aborted,
			Object:   objects[f.Destination],
		})
	}
	return m
}

// writeManifest records the files of a run, in completion order.
func writeManifest(path string, res *splitResult) error {
	data, err := yaml.Marshal(buildManifest(res))
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
