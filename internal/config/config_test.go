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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pboisselier/gosh/internal/config"
	"github.com/pboisselier/gosh/internal/job"
)

func TestDefaultMatchesJobPackageDesignPoints(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, job.Capacity, cfg.JobTableCapacity)
	require.Equal(t, job.CmdBufSize, cfg.CmdBufSize)
	require.Empty(t, cfg.StatusAddr)
}

func TestLoadWithMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GOSH_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadMergesPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job_table_capacity: 8\n"), 0o644))
	t.Setenv("GOSH_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.JobTableCapacity)
	require.Equal(t, job.CmdBufSize, cfg.CmdBufSize) // untouched field keeps its default
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job_table_capacity: [this is not an int\n"), 0o644))
	t.Setenv("GOSH_CONFIG", path)

	_, err := config.Load()
	require.Error(t, err)
}
