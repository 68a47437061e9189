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
	"github.com/pboisselier/gosh/internal/logger"
)

// savedStdio is the save-slot triple the redirection layer restores on
// every exit path, including error ladders (P4: redirection transparency).
type savedStdio struct {
	in, out, err int
}

func (s *Shell) saveStdio() (savedStdio, error) {
	var saved savedStdio
	var err error
	if saved.in, err = dupSave(0); err != nil {
		return saved, fmt.Errorf("cannot save stdin: %w", err)
	}
	if saved.out, err = dupSave(1); err != nil {
		unix.Close(saved.in)
		return saved, fmt.Errorf("cannot save stdout: %w", err)
	}
	if saved.err, err = dupSave(2); err != nil {
		unix.Close(saved.in)
		unix.Close(saved.out)
		return saved, fmt.Errorf("cannot save stderr: %w", err)
	}
	return saved, nil
}

// restore undoes saveStdio, in reverse order, best-effort (a restore
// failure is logged, never propagated — see internal/logger's role for
// signal-path-style errors).
func (s *Shell) restoreStdio(saved savedStdio) {
	if err := restoreDup2(2, saved.err); err != nil {
		s.logRestoreError("stderr", err)
	}
	if err := restoreDup2(1, saved.out); err != nil {
		s.logRestoreError("stdout", err)
	}
	if err := restoreDup2(0, saved.in); err != nil {
		s.logRestoreError("stdin", err)
	}
}

func (s *Shell) logRestoreError(which string, err error) {
	logger.Debugf("redirect: cannot restore %s: %v", which, err)
}

func openFlagsFor(kind ast.RedirectKind) int {
	switch kind {
	case ast.RedirectIn:
		return unix.O_RDONLY | unix.O_CLOEXEC
	case ast.RedirectAppend:
		return unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND | unix.O_CLOEXEC
	default: // RedirectOut, RedirectErr, RedirectErrOut
		return unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_CLOEXEC
	}
}

// evalRedirect implements the Redirection Layer (C5).
func (s *Shell) evalRedirect(node ast.Redirect, opts Options) int {
	saved, err := s.saveStdio()
	if err != nil {
		fmt.Fprintf(s.Stderr, "%s: %v\n", node.Filename, err)
		return 1
	}

	fd, err := unix.Open(node.Filename, openFlagsFor(node.Kind), 0644)
	if err != nil {
		s.restoreStdio(saved)
		fmt.Fprintf(s.Stderr, "%s: %v\n", node.Filename, err)
		return 1
	}

	switch node.Kind {
	case ast.RedirectIn:
		err = unix.Dup2(fd, 0)
	case ast.RedirectOut, ast.RedirectAppend:
		err = unix.Dup2(fd, 1)
	case ast.RedirectErr:
		err = unix.Dup2(fd, 2)
	case ast.RedirectErrOut:
		if err = unix.Dup2(fd, 1); err == nil {
			err = unix.Dup2(fd, 2)
		}
	}
	if err != nil {
		unix.Close(fd)
		s.restoreStdio(saved)
		fmt.Fprintf(s.Stderr, "%s: %v\n", node.Filename, err)
		return 1
	}

	result := s.Eval(node.Child, opts)

	s.restoreStdio(saved)
	unix.Close(fd)

	// Not canonicalized here: a backgrounded child under a redirection
	// must still be able to propagate the Async sentinel up to whatever
	// sequence or top-level caller needs to see it. Only the top-level
	// entry point (evaluator.go) canonicalizes.
	return result
}
