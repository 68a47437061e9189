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

package termctl_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pboisselier/gosh/internal/termctl"
)

// TestNonInteractiveIsAllNoOps exercises the "shell couldn't acquire a
// controlling terminal" path: a pipe read end is never a tty, so every
// operation must be a safe no-op rather than erroring on a bad ioctl.
func TestNonInteractiveIsAllNoOps(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	a := termctl.New(int(r.Fd()), 12345)
	require.False(t, a.Interactive())

	require.NoError(t, a.GiveTo(999))
	require.NoError(t, a.Reclaim())

	fg, err := a.Foreground()
	require.NoError(t, err)
	require.Equal(t, 0, fg)
}

// TestSetShellPGIDIsSafeWhenNonInteractive covers SetShellPGID being
// called after construction (shell.New builds the Arbiter with pgid 0 and
// Init sets the real pgid later). The pgid Reclaim hands the terminal to
// is not observable from this package's tests; only the no-op path is
// checked.
func TestSetShellPGIDIsSafeWhenNonInteractive(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	a := termctl.New(int(r.Fd()), 0)
	require.False(t, a.Interactive())

	a.SetShellPGID(4242)
	// Non-interactive, so Reclaim/GiveTo never actually touch an ioctl;
	// this only confirms SetShellPGID doesn't panic or error across the
	// no-op path and is safe to call post-construction.
	require.NoError(t, a.Reclaim())
}
