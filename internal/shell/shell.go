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

// Package shell implements the redirection, pipeline, sequence, launcher,
// built-in and evaluator layers (C5-C10). They live in one package,
// mirroring the way pebble's servstate package combines its manager,
// handlers and request-validation code: these layers are mutually
// recursive (a pipeline evaluates its children through the same
// evaluator, a redirection wraps any node type including another
// redirection or pipeline) and splitting them into separate packages
// would just produce an import cycle.
package shell

import (
	"io"
	"os"
	"sync"

	"github.com/pboisselier/gosh/internal/config"
	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/logger"
	"github.com/pboisselier/gosh/internal/reaper"
	"github.com/pboisselier/gosh/internal/signaling"
	"github.com/pboisselier/gosh/internal/termctl"
)

// Options bundles the per-evaluation choices that recurse down the tree
// unchanged except where a node explicitly overrides them (BACKGROUND
// forces Background=BG for its subtree; pipeline stages force BG on the
// consumer only).
type Options struct {
	Background job.Background
	Notify     bool
}

// Shell is the evaluator core's process-wide state: the job table, the
// terminal arbiter, the reaper, the signal dispatcher, and the handful of
// scalars (shell pid/pgid, interactive flag, last_status) the spec assigns
// to "process-wide state".
type Shell struct {
	Table      *job.Table
	Term       *termctl.Arbiter
	Reaper     *reaper.Reaper
	Dispatcher *signaling.Dispatcher

	ShellPID    int
	ShellPGID   int
	Interactive bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	mu          sync.Mutex
	lastStatus  int
	initDone    bool
	initAttempt int

	// ExitRequested/ExitCode are set by the `exit` builtin; the top-level
	// read loop (cmd/gosh) checks ExitRequested after every Eval call.
	ExitRequested bool
	ExitCode      int

	// lastFG/hasLastFG record the job a foreground wait most recently
	// concluded, so EvalTopLevel can print the segfault/terminated
	// notices and prefer its real status even though fg_job itself is
	// already cleared by the time Eval returns.
	lastFG    job.Job
	hasLastFG bool
}

func (s *Shell) recordForegroundResult(j job.Job) {
	s.mu.Lock()
	s.lastFG = j
	s.hasLastFG = true
	s.mu.Unlock()
}

func (s *Shell) takeForegroundResult() (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.lastFG, s.hasLastFG
	s.hasLastFG = false
	return j, ok
}

// New constructs a Shell wired to cfg's tunables. Call Init before the
// first evaluation.
func New(cfg config.Config) *Shell {
	tbl := job.NewTableWithOptions(cfg.JobTableCapacity, cfg.CmdBufSize)
	term := termctl.New(int(os.Stdin.Fd()), 0)
	r := reaper.New(tbl)
	d := signaling.New(tbl, term)
	return &Shell{
		Table:      tbl,
		Term:       term,
		Reaper:     r,
		Dispatcher: d,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// ForceNonInteractive disables terminal acquisition even if stdin is
// actually a tty, the --non-interactive CLI override.
func (s *Shell) ForceNonInteractive() {
	s.Term.ForceNonInteractive()
}

// Init establishes the shell's own process group, attempts to acquire the
// controlling terminal, and starts the reaper and signal dispatcher. Per
// the spec, initialization may be retried; after two consecutive failures
// the caller should treat the shell as unable to start. Init is safe to
// call more than once: it only does the work the first time it succeeds.
func (s *Shell) Init() error {
	s.mu.Lock()
	if s.initDone {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.tryInit()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.initAttempt++
		return err
	}
	s.initDone = true
	return nil
}

// InitAttempts reports how many failed Init attempts have been made, so
// the caller can implement "terminate after two consecutive failures".
func (s *Shell) InitAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initAttempt
}

func (s *Shell) tryInit() error {
	s.ShellPID = os.Getpid()
	s.ShellPGID = s.ShellPID
	s.Term.SetShellPGID(s.ShellPGID)

	// Best-effort: put ourselves in our own process group. In typical
	// interactive use the shell is already its own group leader (started
	// from a login shell or terminal emulator); this is a no-op then.
	if err := setpgid(0, s.ShellPGID); err != nil {
		logger.Debugf("shell: setpgid during init: %v", err)
	}

	s.Interactive = s.Term.Interactive()
	if s.Interactive {
		if err := s.Term.GiveTo(s.ShellPGID); err != nil {
			logger.Debugf("shell: acquire controlling terminal: %v", err)
		}
	}

	if err := s.Reaper.Start(); err != nil {
		return err
	}
	if err := s.Dispatcher.Start(); err != nil {
		return err
	}
	return nil
}

// LastStatus returns the canonicalized exit status of the last top-level
// evaluation, the value `echo $?` reports.
func (s *Shell) LastStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

func (s *Shell) setLastStatus(v int) {
	s.mu.Lock()
	s.lastStatus = v
	s.mu.Unlock()
}
