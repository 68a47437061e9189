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

// Command gosh is the shell binary: it wires a read loop and
// internal/shellparse (both out of the evaluator core's scope, per the
// job-control spec) to internal/shell's evaluator core.
package main

import (
	"bufio"
	"fmt"
	"os"

	flags "github.com/canonical/go-flags"

	"github.com/pboisselier/gosh/internal/config"
	"github.com/pboisselier/gosh/internal/logger"
	"github.com/pboisselier/gosh/internal/shell"
	"github.com/pboisselier/gosh/internal/shellparse"
	"github.com/pboisselier/gosh/internal/statusapi"
)

type cliOptions struct {
	Command        string `short:"c" long:"command" description:"Execute a single command string and exit"`
	StatusAddr     string `long:"status-addr" description:"Listen address for the optional job-status HTTP endpoint (host:port)"`
	MaxJobs        int    `long:"max-jobs" description:"Override the configured job table capacity"`
	NonInteractive bool   `long:"non-interactive" description:"Never attempt to acquire the controlling terminal"`
	Debug          bool   `long:"debug" description:"Log internal job-control state transitions to stderr"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// The hidden re-exec entry point (internal/shell.RunInternalEvalTree)
	// is checked before flag parsing: it is never something a user passes
	// deliberately, and go-flags has no reason to know about it.
	if len(args) > 0 && args[0] == shell.InternalEvalFlag {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
			return 1
		}
		return shell.RunInternalEvalTree(shell.New(cfg))
	}

	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		return 1
	}
	if len(rest) > 0 {
		fmt.Fprintf(os.Stderr, "gosh: unexpected arguments: %v\n", rest)
		return 1
	}

	if opts.Debug {
		os.Setenv("GOSH_DEBUG", "1")
		logger.SetLogger(logger.New(os.Stderr, "gosh: "))
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
		return 1
	}
	if opts.MaxJobs > 0 {
		cfg.JobTableCapacity = opts.MaxJobs
	}

	sh := shell.New(cfg)
	if opts.NonInteractive {
		sh.ForceNonInteractive()
	}

	statusAddr := cfg.StatusAddr
	if opts.StatusAddr != "" {
		statusAddr = opts.StatusAddr
	}
	if statusAddr != "" {
		srv := statusapi.New(statusAddr, sh.Table)
		go func() {
			if err := srv.Serve(); err != nil {
				logger.Debugf("statusapi: %v", err)
			}
		}()
		defer srv.Close()
	}

	if opts.Command != "" {
		return runLine(sh, opts.Command)
	}

	return runLoop(sh)
}

// runLine parses and evaluates a single command string, the -c mode.
func runLine(sh *shell.Shell, line string) int {
	node, err := shellparse.Parse(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
		return 1
	}
	status := sh.EvalTopLevel(node)
	if sh.ExitRequested {
		return sh.ExitCode
	}
	return status
}

// runLoop is the minimal read loop the evaluator-core spec calls an
// external collaborator: it supplies parsed lines to EvalTopLevel and
// prints the status-bearing prompt between them. Line editing and history
// are out of scope; this is bufio.Scanner over stdin.
func runLoop(sh *shell.Shell) int {
	if err := sh.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if sh.Interactive {
			fmt.Fprintf(os.Stdout, "gosh(%d)> ", sh.LastStatus())
		}
		if !scanner.Scan() {
			return sh.LastStatus()
		}
		line := scanner.Text()

		node, err := shellparse.Parse(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gosh: %v\n", err)
			continue
		}

		sh.EvalTopLevel(node)
		if sh.ExitRequested {
			return sh.ExitCode
		}
	}
}
