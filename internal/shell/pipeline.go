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
)

// evalPipe implements the Pipeline Layer (C6). The consumer is launched
// before the producer so a reader is already attached by the time the
// producer's first write happens — otherwise a producer that writes
// before any reader exists can be killed by SIGPIPE for no good reason.
// Close-on-exec on both pipe ends keeps a backgrounded pipeline from
// holding itself open through descriptors inherited across the shell's
// own future forks (P5: descriptor non-leak).
func (s *Shell) evalPipe(node ast.Pipe, opts Options) int {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_CLOEXEC); err != nil {
		fmt.Fprintf(s.Stderr, "pipe: %v\n", err)
		return 1
	}
	readEnd, writeEnd := fds[0], fds[1]

	savedIn, err := dupSave(0)
	if err != nil {
		unix.Close(readEnd)
		unix.Close(writeEnd)
		fmt.Fprintf(s.Stderr, "pipe: %v\n", err)
		return 1
	}
	savedOut, err := dupSave(1)
	if err != nil {
		unix.Close(readEnd)
		unix.Close(writeEnd)
		unix.Close(savedIn)
		fmt.Fprintf(s.Stderr, "pipe: %v\n", err)
		return 1
	}

	// Consumer: read end becomes its stdin.
	if err := unix.Dup2(readEnd, 0); err != nil {
		unix.Close(readEnd)
		unix.Close(writeEnd)
		restoreDup2(0, savedIn)
		unix.Close(savedOut)
		fmt.Fprintf(s.Stderr, "pipe: %v\n", err)
		return 1
	}
	unix.Close(readEnd)

	consumerOpts := opts
	consumerOpts.Background = job.BG
	_ = s.Eval(node.Right, consumerOpts)

	// Restore stdin, then rewire stdout to the write end for the producer.
	restoreDup2(0, savedIn)

	if err := unix.Dup2(writeEnd, 1); err != nil {
		unix.Close(writeEnd)
		restoreDup2(1, savedOut)
		fmt.Fprintf(s.Stderr, "pipe: %v\n", err)
		return 1
	}
	unix.Close(writeEnd)

	result := s.Eval(node.Left, opts)

	restoreDup2(1, savedOut)

	return result
}
