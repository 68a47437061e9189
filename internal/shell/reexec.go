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
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pboisselier/gosh/internal/ast"
)

func init() {
	gob.Register(ast.Empty{})
	gob.Register(ast.Simple{})
	gob.Register(ast.Sequence{})
	gob.Register(ast.Background{})
	gob.Register(ast.Pipe{})
	gob.Register(ast.Redirect{})
}

// InternalEvalFlag is the hidden argument cmd/gosh recognizes to mean
// "don't start a prompt; decode an expression tree from fd 3, evaluate it
// in the foreground, and exit with its status." It is how this package
// implements "fork a child that runs the sequence and exits with the
// final status" (spec §4.7): Go cannot safely fork() and keep running Go
// code in the child (the runtime's multiple OS threads make a bare fork
// unsafe past the fork point), so the reimplementation re-execs the gosh
// binary itself instead — the same technique used by container-runtime
// "reexec" helpers for the identical reason.
const InternalEvalFlag = "--internal-eval-tree"

// EncodeNode gob-encodes an expression tree for a re-exec'd child to
// decode with DecodeNode.
func EncodeNode(n ast.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&n); err != nil {
		return nil, fmt.Errorf("cannot encode expression tree: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeNode reverses EncodeNode.
func DecodeNode(data []byte) (ast.Node, error) {
	var n ast.Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n); err != nil {
		return nil, fmt.Errorf("cannot decode expression tree: %w", err)
	}
	return n, nil
}

// spawnSequenceChild re-execs the current binary to run node (a Sequence,
// evaluated as if FOREGROUND within its own process and process group)
// and exits with its status. It inherits whatever the caller's current
// stdin/stdout/stderr are, so it honors any redirection already in effect
// around the backgrounded sequence.
func spawnSequenceChild(node ast.Node) (pid int, err error) {
	payload, err := EncodeNode(node)
	if err != nil {
		return 0, err
	}

	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("cannot create payload pipe: %w", err)
	}
	defer r.Close()

	cmd := exec.Command(self, InternalEvalFlag)
	cmd.Stdin = os.NewFile(0, "/dev/stdin")
	cmd.Stdout = os.NewFile(1, "/dev/stdout")
	cmd.Stderr = os.NewFile(2, "/dev/stderr")
	cmd.ExtraFiles = []*os.File{r}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		w.Close()
		return 0, fmt.Errorf("cannot start sequence child: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		w.Close()
		cmd.Process.Kill()
		return 0, fmt.Errorf("cannot send expression tree to sequence child: %w", err)
	}
	w.Close()

	return cmd.Process.Pid, nil
}

// RunInternalEvalTree is cmd/gosh's entry point when invoked with
// InternalEvalFlag: decode the tree from fd 3, evaluate it as a fresh
// foreground shell, and return the status to exit with.
func RunInternalEvalTree(s *Shell) int {
	payloadFile := os.NewFile(3, "payload")
	defer payloadFile.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(payloadFile); err != nil {
		fmt.Fprintf(os.Stderr, "gosh: cannot read expression tree: %v\n", err)
		return 1
	}

	node, err := DecodeNode(buf.Bytes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
		return 1
	}

	if err := s.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "gosh: cannot initialize: %v\n", err)
		return 1
	}

	return s.EvalTopLevel(node)
}
