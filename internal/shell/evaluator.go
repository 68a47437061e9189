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

	"golang.org/x/sys/unix"

	"github.com/pboisselier/gosh/internal/ast"
	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/status"
)

// Eval implements the Expression Evaluator (C10): a recursive dispatch on
// the node's concrete type. It returns a raw result, which may be a real
// 0..255 exit status or an internal status.Sentinel (Async, Empty, ...);
// only EvalTopLevel canonicalizes that into a user-visible value.
func (s *Shell) Eval(node ast.Node, opts Options) int {
	switch n := node.(type) {
	case ast.Empty, nil:
		return int(status.Empty)
	case ast.Redirect:
		return s.evalRedirect(n, opts)
	case ast.Pipe:
		return s.evalPipe(n, opts)
	case ast.Sequence:
		return s.evalSequence(n, opts)
	case ast.Background:
		childOpts := opts
		childOpts.Background = job.BG
		return s.Eval(n.Child, childOpts)
	case ast.Simple:
		return s.evalSimple(n, opts)
	default:
		fmt.Fprintln(s.Stderr, "gosh: unexpected expression node")
		return 1
	}
}

// EvalTopLevel is the outer entry point a read loop calls once per parsed
// line. It ensures the shell is initialized (retrying once per the spec),
// evaluates the tree in the foreground with notifications gated on
// interactivity, sweeps the reaper synchronously so status reporting
// reflects the most recent observable state, canonicalizes the status
// (preferring a nonzero foreground job status over the sentinel
// canonicalization), prints fault notices for a foreground job killed by
// SIGSEGV/SIGKILL/SIGTERM, removes completed jobs (notifying for
// background ones when interactive), and resets the foreground reference.
func (s *Shell) EvalTopLevel(node ast.Node) int {
	if err := s.Init(); err != nil {
		if s.InitAttempts() >= 2 {
			fmt.Fprintln(s.Stderr, "gosh: unable to init shell correctly, quitting...")
			s.ExitRequested = true
			s.ExitCode = 1
			return 1
		}
		fmt.Fprintf(s.Stderr, "gosh: init failed, will retry: %v\n", err)
	}

	opts := Options{Background: job.FG, Notify: s.Interactive}
	raw := s.Eval(node, opts)

	s.Reaper.SweepOnce(nil)

	result := status.Canonicalize(status.Sentinel(raw))

	fg, hasFG := s.takeForegroundResult()
	if hasFG && fg.Status != 0 && status.Sentinel(raw) < status.Threshold {
		result = fg.Status
	}

	if s.Interactive && hasFG {
		switch fg.TermSig {
		case int(unix.SIGSEGV):
			fmt.Fprintf(s.Stderr, "%s: Segmentation fault.\n", fg.Cmd)
		case int(unix.SIGKILL), int(unix.SIGTERM):
			fmt.Fprintf(s.Stderr, "%s: Terminated.\n", fg.Cmd)
		}
	}

	s.Table.SweepDone(s.Interactive, func(j job.Job) { displayJob(s, j) })
	s.Table.ClearForeground()
	s.setLastStatus(result)

	return result
}
