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
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pboisselier/gosh/internal/ast"
	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/logger"
	"github.com/pboisselier/gosh/internal/status"
)

// evalSimple implements the Command Launcher (C8): builtin dispatch first,
// then fork/exec and job registration.
func (s *Shell) evalSimple(node ast.Simple, opts Options) int {
	if len(node.Args) == 0 {
		return int(status.Empty)
	}
	name := node.Args[0]

	if result, handled := s.dispatchBuiltin(name, node.Args, opts); handled {
		return result
	}

	return s.launchExternal(name, node.Args, opts)
}

// launchExternal forks (via os/exec + Setpgid) and execs an external
// program, reserving the job-table slot *before* forking so a full table
// never leaves a forked, unregistered orphan (the spec's own suggested
// fix for the original's job-table-full-after-fork race).
func (s *Shell) launchExternal(name string, argv []string, opts Options) int {
	jid, err := s.Table.Reserve()
	if err != nil {
		fmt.Fprintln(s.Stderr, "gosh: job table full")
		return int(status.JobTableFull)
	}

	cmd := exec.Command(name, argv[1:]...)
	cmd.Stdin = os.NewFile(0, "/dev/stdin")
	cmd.Stdout = os.NewFile(1, "/dev/stdout")
	cmd.Stderr = os.NewFile(2, "/dev/stderr")
	// New process group, leader = the child itself: the analogue of the
	// child installing default signal handlers and calling setpgid(0,0)
	// before exec. Go's exec always execs with default signal
	// dispositions, so there is no separate "install default handlers"
	// step to perform here.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		s.Table.ReleaseReserved(jid)
		fmt.Fprintf(s.Stderr, "%s: command not found\n", name)
		return 127
	}

	pid := cmd.Process.Pid
	j := s.Table.FillReserved(jid, pid, pid, opts.Background, name)

	// Parent-side setpgid as well, guarding the TOCTOU race against the
	// child's own setpgid: whichever completes first wins, and both are
	// harmless once the child has execed.
	if err := setpgid(pid, pid); err != nil && err != unix.EACCES && err != unix.ESRCH {
		logger.Debugf("launcher: parent-side setpgid(%d): %v", pid, err)
	}

	return s.launchJob(j, opts)
}

// launchJob drives a freshly-registered job to completion (FG) or hands
// it off to run asynchronously (BG).
func (s *Shell) launchJob(j job.Job, opts Options) int {
	if opts.Background == job.BG {
		if opts.Notify {
			fmt.Fprintf(s.Stdout, "[%d] %d\n", j.JID, j.PID)
		}
		return int(status.Async)
	}

	return s.waitForeground(j)
}

// waitForeground hands the terminal to pgid, blocks until it exits or
// stops, restores the job table and terminal accordingly, and returns the
// resulting exit status (or the Async sentinel if it stopped or was killed
// by a signal rather than exiting — the evaluator's top-level entry point
// is what prints the
// segfault/terminated notices and removes Done jobs).
func (s *Shell) waitForeground(j job.Job) int {
	if err := s.Table.SetForeground(j.JID); err != nil {
		logger.Debugf("launcher: set foreground job %d: %v", j.JID, err)
	}
	if err := s.Term.GiveTo(j.PGID); err != nil {
		logger.Debugf("launcher: give terminal to pgid %d: %v", j.PGID, err)
	}

	var ws unix.WaitStatus
	_, err := unix.Wait4(j.PID, &ws, unix.WUNTRACED, nil)

	if err := s.Term.Reclaim(); err != nil {
		logger.Debugf("launcher: reclaim terminal: %v", err)
	}
	s.Table.ClearForeground()

	if err != nil {
		logger.Debugf("launcher: wait4(%d): %v", j.PID, err)
		return 1
	}

	switch {
	case ws.Stopped():
		s.Table.SetStopped(j.JID)
		if updated, ok := s.Table.FindByPID(j.PID); ok {
			s.recordForegroundResult(updated)
		}
		return int(status.Async)
	case ws.Signaled():
		s.Table.SetDone(j.JID, 0, int(ws.Signal()))
		if updated, ok := s.Table.FindByPID(j.PID); ok {
			s.recordForegroundResult(updated)
		}
		return int(status.Async)
	default:
		s.Table.SetDone(j.JID, ws.ExitStatus(), 0)
		if updated, ok := s.Table.FindByPID(j.PID); ok {
			s.recordForegroundResult(updated)
		}
		return ws.ExitStatus()
	}
}
