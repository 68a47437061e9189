// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the shell's optional settings file, the way
// pebble's internal/plan package loads a YAML document describing desired
// state. Unlike a service plan, this file is small and entirely optional:
// every field defaults to the design points named in the job-control spec
// when the file is absent or a field is unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pboisselier/gosh/internal/job"
)

// Config holds the shell's tunables.
type Config struct {
	// JobTableCapacity bounds how many jobs can be tracked concurrently.
	JobTableCapacity int `yaml:"job_table_capacity"`
	// CmdBufSize bounds the printable command name stored per job.
	CmdBufSize int `yaml:"cmd_buf_size"`
	// StatusAddr, if set, is the listen address for internal/statusapi's
	// local HTTP status/metrics endpoint (e.g. "127.0.0.1:7070"). Empty
	// means the endpoint is not started.
	StatusAddr string `yaml:"status_addr"`
}

// Default returns the configuration used when no settings file is present.
func Default() Config {
	return Config{
		JobTableCapacity: job.Capacity,
		CmdBufSize:       job.CmdBufSize,
		StatusAddr:       "",
	}
}

// Path returns the settings file path: $GOSH_CONFIG if set, otherwise
// ~/.config/gosh/config.yaml.
func Path() string {
	if p := os.Getenv("GOSH_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gosh", "config.yaml")
}

// Load reads and parses the settings file at Path(), falling back to
// Default() for any field the file doesn't set, or entirely if the file
// doesn't exist.
func Load() (Config, error) {
	cfg := Default()

	path := Path()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %q: %w", path, err)
	}

	// Decode into a struct with pointer fields so we can tell "unset" from
	// "explicitly zero", then merge into defaults below.
	var override struct {
		JobTableCapacity *int    `yaml:"job_table_capacity"`
		CmdBufSize       *int    `yaml:"cmd_buf_size"`
		StatusAddr       *string `yaml:"status_addr"`
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("cannot parse config %q: %w", path, err)
	}

	if override.JobTableCapacity != nil {
		cfg.JobTableCapacity = *override.JobTableCapacity
	}
	if override.CmdBufSize != nil {
		cfg.CmdBufSize = *override.CmdBufSize
	}
	if override.StatusAddr != nil {
		cfg.StatusAddr = *override.StatusAddr
	}

	return cfg, nil
}
