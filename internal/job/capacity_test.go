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

package job_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pboisselier/gosh/internal/job"
)

func TestNewTableWithCapacityHonorsConfiguredSize(t *testing.T) {
	tbl := job.NewTableWithCapacity(4)
	require.Equal(t, 4, tbl.Cap())

	for i := 0; i < 4; i++ {
		_, err := tbl.Register(100+i, 100+i, job.BG, "x")
		require.NoError(t, err)
	}
	_, err := tbl.Register(999, 999, job.BG, "x")
	require.ErrorIs(t, err, job.ErrFull)
}

func TestNewTableWithCapacityZeroFallsBackToDefault(t *testing.T) {
	tbl := job.NewTableWithCapacity(0)
	require.Equal(t, job.Capacity, tbl.Cap())
}
