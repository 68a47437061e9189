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

package shell

import (
	"golang.org/x/sys/unix"
)

// dupSave duplicates fd into a fresh descriptor marked close-on-exec, the
// save half of the redirection layer's save/restore discipline.
func dupSave(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

// restoreDup2 aliases saved back onto fd (dup2-style) and closes saved.
func restoreDup2(fd, saved int) error {
	if err := unix.Dup2(saved, fd); err != nil {
		unix.Close(saved)
		return err
	}
	return unix.Close(saved)
}

func setpgid(pid, pgid int) error {
	return unix.Setpgid(pid, pgid)
}
