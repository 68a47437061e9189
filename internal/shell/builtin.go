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
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/logger"
)

// builtinFunc is a shell-internal command's implementation.
type builtinFunc func(s *Shell, argv []string, opts Options) int

// commandHash is the string-hash the Built-in Executor dispatches on, and
// the same hash the `hash` builtin prints — both read off this one
// function, so `hash cd` always matches whatever the dispatcher used to
// recognize `cd`.
func commandHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h += uint32(name[i])
	}
	return h
}

var builtinTable = map[uint32]builtinFunc{
	commandHash("exit"): builtinExit,
	commandHash("echo"): builtinEcho,
	commandHash("cd"):   builtinCd,
	commandHash("help"): builtinHelp,
	commandHash("hash"): builtinHash,
	commandHash("jobs"): builtinJobs,
	commandHash("fg"):   builtinFg,
	commandHash("bg"):   builtinBg,
}

// builtinNames maps each registered hash back to its name, so that
// dispatchBuiltin only dispatches an exact name match: commandHash is an
// ASCII sum, so any other word with the same sum (e.g. "dc" for "cd") is
// treated as an external command rather than run as that builtin.
var builtinNames = map[uint32]string{
	commandHash("exit"): "exit",
	commandHash("echo"): "echo",
	commandHash("cd"):   "cd",
	commandHash("help"): "help",
	commandHash("hash"): "hash",
	commandHash("jobs"): "jobs",
	commandHash("fg"):   "fg",
	commandHash("bg"):   "bg",
}

// dispatchBuiltin looks up name in the builtin table. handled=false means
// "not recognized", the sentinel that tells the launcher to fork/exec
// instead of returning status.NotABuiltin up the evaluator (avoids
// threading a sentinel through a second return path for no benefit).
func (s *Shell) dispatchBuiltin(name string, argv []string, opts Options) (result int, handled bool) {
	fn, ok := builtinTable[commandHash(name)]
	if !ok || builtinNames[commandHash(name)] != name {
		return 0, false
	}
	return fn(s, argv, opts), true
}

func builtinExit(s *Shell, argv []string, opts Options) int {
	code := 0
	if len(argv) > 1 {
		fmt.Sscanf(argv[1], "%d", &code)
	}
	s.ExitRequested = true
	s.ExitCode = code
	return code
}

// builtinEcho implements the `$?` echo token (SUPPLEMENTED FEATURES #1):
// if argv[1] is literally "$?", it is consumed (not printed) and replaced
// by the last top-level status as the first printed word.
func builtinEcho(s *Shell, argv []string, opts Options) int {
	args := argv[1:]
	var words []string
	if len(args) > 0 && args[0] == "$?" {
		words = append(words, fmt.Sprintf("%d", s.LastStatus()))
		args = args[1:]
	}
	words = append(words, args...)
	fmt.Fprintln(s.Stdout, strings.Join(words, " "))
	return 0
}

// builtinCd changes the shell's working directory. No argument is a
// no-op, matching the original's observable behavior (see DESIGN.md's
// Open Question decision on this).
func builtinCd(s *Shell, argv []string, opts Options) int {
	if len(argv) < 2 {
		return 0
	}
	if err := os.Chdir(argv[1]); err != nil {
		fmt.Fprintf(s.Stderr, "cd: %v\n", err)
		return 1
	}
	return 0
}

const helpText = `gosh builtins:
  cd [dir]     change the working directory
  echo [args]  print arguments
  exit [n]     exit the shell
  hash name    print the internal dispatch hash of name
  jobs         list tracked jobs
  fg [name]    resume a job in the foreground
  bg [name]    resume a job in the background

Keyboard shortcuts:
  Ctrl-C  interrupt the foreground job
  Ctrl-Z  suspend the foreground job
`

func builtinHelp(s *Shell, argv []string, opts Options) int {
	fmt.Fprint(s.Stdout, helpText)
	return 0
}

func builtinHash(s *Shell, argv []string, opts Options) int {
	if len(argv) < 2 {
		return 1
	}
	fmt.Fprintf(s.Stdout, "%x\n", commandHash(argv[1]))
	return 0
}

// displayJob renders one job-table line, the format used both by `jobs`
// and by the background-completion notices EvalTopLevel prints when it
// sweeps Done jobs out of the table.
func displayJob(w *Shell, j job.Job) {
	trailer := ""
	switch {
	case j.State == job.Done && j.TermSig != 0:
		trailer = fmt.Sprintf("\tTerminated with signal %d", j.TermSig)
	case j.State == job.Done:
		trailer = fmt.Sprintf("\tExit %d", j.Status)
	}
	fmt.Fprintf(w.Stdout, "[%d]+ %s\t%s\tPID: %d%s\n", j.JID, j.State, j.Cmd, j.PID, trailer)
}

func builtinJobs(s *Shell, argv []string, opts Options) int {
	for _, j := range s.Table.Snapshot() {
		displayJob(s, j)
	}
	return 0
}

// selectJob implements the fg/bg target-selection rule (§4.9.1).
func (s *Shell) selectJob(name string) (job.Job, error) {
	if name != "" {
		j, ok := s.Table.FindByCmd(name)
		if !ok {
			return job.Job{}, fmt.Errorf("%s: no such job", name)
		}
		return j, nil
	}

	if j, ok := s.Table.LastJob(); ok {
		return j, nil
	}
	if j, ok := s.Table.MostRecentActive(); ok {
		return j, nil
	}
	return job.Job{}, fmt.Errorf("no job to resume")
}

func builtinFg(s *Shell, argv []string, opts Options) int {
	name := ""
	if len(argv) > 1 {
		name = argv[1]
	}
	j, err := s.selectJob(name)
	if err != nil {
		fmt.Fprintf(s.Stderr, "fg: %v\n", err)
		return 1
	}

	fmt.Fprintf(s.Stdout, "[%d]+ Resumed\t%s\n", j.JID, j.Cmd)

	if j.State == job.Stopped {
		if err := unix.Kill(-j.PGID, unix.SIGCONT); err != nil {
			logger.Debugf("fg: SIGCONT to pgid %d: %v", j.PGID, err)
		}
		s.Table.SetRunning(j.JID)
	}

	return s.waitForeground(j)
}

func builtinBg(s *Shell, argv []string, opts Options) int {
	name := ""
	if len(argv) > 1 {
		name = argv[1]
	}
	j, err := s.selectJob(name)
	if err != nil {
		fmt.Fprintf(s.Stderr, "bg: %v\n", err)
		return 1
	}
	if j.State == job.Running {
		fmt.Fprintf(s.Stderr, "bg: job %d already running\n", j.JID)
		return 1
	}

	fmt.Fprintf(s.Stdout, "[%d]+ Resumed\t%s\n", j.JID, j.Cmd)

	if err := unix.Kill(-j.PGID, unix.SIGCONT); err != nil {
		logger.Debugf("bg: SIGCONT to pgid %d: %v", j.PGID, err)
	}
	s.Table.SetRunning(j.JID)
	s.Table.SetBackground(j.JID)
	return 0
}
