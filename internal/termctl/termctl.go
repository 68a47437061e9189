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

// Package termctl is the Terminal Arbiter (C4): the sole point in the
// shell that transfers controlling-terminal ownership between the shell's
// process group and a foreground job's process group. Every operation is
// a no-op when the shell isn't actually attached to a terminal.
package termctl

import (
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Arbiter mediates controlling-terminal ownership for one terminal fd.
type Arbiter struct {
	fd          int
	shellPGID   int
	interactive bool
}

// New returns an Arbiter for fd (typically os.Stdin.Fd()), recording
// whether the shell is actually attached to a terminal there. shellPGID is
// the process group Reclaim restores ownership to.
func New(fd int, shellPGID int) *Arbiter {
	return &Arbiter{
		fd:          fd,
		shellPGID:   shellPGID,
		interactive: term.IsTerminal(fd),
	}
}

// Interactive reports whether the shell acquired a controlling terminal at
// startup. When false, GiveTo/Reclaim/Foreground are no-ops, matching the
// spec's "non-interactive: no prompt decorations, no terminal transfers."
func (a *Arbiter) Interactive() bool {
	return a.interactive
}

// ForceNonInteractive disables terminal transfers regardless of what was
// detected at construction time (the --non-interactive CLI override).
func (a *Arbiter) ForceNonInteractive() {
	a.interactive = false
}

// SetShellPGID updates the process group Reclaim restores ownership to.
// The shell's real process group is only known once Init runs (New is
// called before the shell has necessarily become its own group leader),
// so shell.Init calls this once it has computed ShellPGID.
func (a *Arbiter) SetShellPGID(pgid int) {
	a.shellPGID = pgid
}

// GiveTo transfers the terminal's foreground process group to pgid — used
// before a foreground wait so the kernel delivers terminal I/O and
// keyboard signals (SIGINT/SIGTSTP/SIGTTIN/SIGTTOU) to the job rather
// than to the shell.
func (a *Arbiter) GiveTo(pgid int) error {
	if !a.interactive {
		return nil
	}
	return unix.IoctlSetPointerInt(a.fd, unix.TIOCSPGRP, pgid)
}

// Reclaim gives the terminal back to the shell's own process group, the
// operation performed after every foreground wait (P7: the terminal's
// foreground pgid equals the shell's pgid once the shell has the prompt
// back).
func (a *Arbiter) Reclaim() error {
	return a.GiveTo(a.shellPGID)
}

// Foreground returns the terminal's current foreground process group.
// Returns (0, nil) when non-interactive.
func (a *Arbiter) Foreground() (int, error) {
	if !a.interactive {
		return 0, nil
	}
	return unix.IoctlGetInt(a.fd, unix.TIOCGPGRP)
}
