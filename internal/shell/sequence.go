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

	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/status"

	"github.com/pboisselier/gosh/internal/ast"
)

// sequenceJobName is the fixed display label a backgrounded sequence
// registers under, matching the original evaluator's register_job(pid,
// pid, JBG, "Sequence") call.
const sequenceJobName = "Sequence"

// evalSequence implements the Sequence Layer (C7): SEQUENCE, SEQUENCE_AND
// and SEQUENCE_OR all share this path, differing only in node.Op.
func (s *Shell) evalSequence(node ast.Sequence, opts Options) int {
	if opts.Background == job.BG {
		return s.launchBackgroundSequence(node, opts)
	}

	leftRaw := s.Eval(node.Left, opts)
	leftStatus := status.Canonicalize(status.Sentinel(leftRaw))

	switch node.Op {
	case ast.SeqAlways:
		return s.Eval(node.Right, opts)
	case ast.SeqAnd:
		if leftStatus == 0 {
			return s.Eval(node.Right, opts)
		}
		return leftStatus
	case ast.SeqOr:
		if leftStatus != 0 {
			return s.Eval(node.Right, opts)
		}
		return leftStatus
	default:
		return leftStatus
	}
}

// launchBackgroundSequence re-execs the gosh binary to run node to
// completion in its own process and process group (see reexec.go for why
// this stands in for "fork a child that runs the sequence" in Go), then
// registers the resulting pid as a job labeled "Sequence" and returns the
// Async sentinel — the real status arrives later via the reaper.
func (s *Shell) launchBackgroundSequence(node ast.Sequence, opts Options) int {
	jid, err := s.Table.Reserve()
	if err != nil {
		fmt.Fprintln(s.Stderr, "gosh: job table full")
		return int(status.JobTableFull)
	}

	pid, err := spawnSequenceChild(node)
	if err != nil {
		s.Table.ReleaseReserved(jid)
		fmt.Fprintf(s.Stderr, "gosh: %v\n", err)
		return 1
	}

	j := s.Table.FillReserved(jid, pid, pid, job.BG, sequenceJobName)
	if opts.Notify {
		fmt.Fprintf(s.Stdout, "[%d] %d\n", j.JID, j.PID)
	}
	return int(status.Async)
}
