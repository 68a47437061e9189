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

// Package signaling is the Signal Dispatcher (C2). Go's os/signal already
// drains asynchronous signal delivery into a channel read by an ordinary
// goroutine — the self-pipe model a strict reimplementation of the
// original evaluator is told to prefer over in-handler mutation (see the
// job-table design notes). That means job-table writes here run on the
// main goroutine's terms, guarded by internal/job's mutex, rather than
// inside an async-signal-unsafe handler: the "pragmatic race" the C
// original accepts doesn't exist in this port.
//
// Only four signals are handled directly; SIGCHLD is left to
// internal/reaper, which installs its own notify channel for it.
// Terminal-generated SIGINT/SIGTSTP are delivered by the kernel to
// whichever process group currently owns the controlling terminal
// (internal/termctl.GiveTo): while a foreground job's group owns it, the
// shell process itself is never the target, so no second "install default
// handlers" phase is needed the way the original's single-threaded C
// handler model required.
package signaling

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/logger"
	"github.com/pboisselier/gosh/internal/metrics"
	"github.com/pboisselier/gosh/internal/termctl"
)

// Dispatcher installs handlers for INTERRUPT, TERMINAL_STOP,
// TERMINAL_INPUT_BLOCKED and TERMINAL_OUTPUT_BLOCKED and dispatches them
// to job-table mutations.
type Dispatcher struct {
	table *job.Table
	term  *termctl.Arbiter

	mu      sync.Mutex
	started bool
	sigCh   chan os.Signal
	tb      tomb.Tomb
}

// New returns a Dispatcher operating on tbl and arb.
func New(tbl *job.Table, arb *termctl.Arbiter) *Dispatcher {
	return &Dispatcher{table: tbl, term: arb}
}

// Start installs the dispatcher's handlers. Idempotent.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.sigCh = make(chan os.Signal, 8)
	signal.Notify(d.sigCh, unix.SIGINT, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	d.started = true
	d.tb = tomb.Tomb{}
	d.tb.Go(d.run)
	return nil
}

// Stop uninstalls the dispatcher's handlers and waits for its goroutine to exit.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	d.tb.Kill(nil)
	err := d.tb.Wait()

	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
	return err
}

func (d *Dispatcher) run() error {
	for {
		select {
		case sig := <-d.sigCh:
			d.handle(sig)
		case <-d.tb.Dying():
			signal.Stop(d.sigCh)
			return nil
		}
	}
}

func (d *Dispatcher) handle(sig os.Signal) {
	switch sig {
	case unix.SIGINT:
		d.onInterrupt()
	case unix.SIGTSTP:
		d.onTerminalStop()
	case unix.SIGTTIN, unix.SIGTTOU:
		d.onTerminalBlocked(sig)
	}
}

// onInterrupt forwards INTERRUPT to the foreground job's process group, if
// one exists; otherwise it is dropped (there is nothing to interrupt).
func (d *Dispatcher) onInterrupt() {
	fg, ok := d.table.FGJob()
	if !ok {
		return
	}
	if err := unix.Kill(-fg.PGID, unix.SIGINT); err != nil {
		logger.Debugf("signaling: forward SIGINT to pgid %d: %v", fg.PGID, err)
		return
	}
	metrics.SignalsDelivered.WithLabelValues("SIGINT").Inc()
}

// onTerminalStop suspends the foreground job: sends it TERMINAL_STOP and
// marks it Stopped/Background, and records it as the last job (so a bare
// `fg` resumes it).
func (d *Dispatcher) onTerminalStop() {
	fg, ok := d.table.FGJob()
	if !ok {
		return
	}
	if err := unix.Kill(-fg.PGID, unix.SIGTSTP); err != nil {
		logger.Debugf("signaling: forward SIGTSTP to pgid %d: %v", fg.PGID, err)
		return
	}
	metrics.SignalsDelivered.WithLabelValues("SIGTSTP").Inc()
	if err := d.table.SetStopped(fg.JID); err != nil {
		logger.Debugf("signaling: mark job %d stopped: %v", fg.JID, err)
	}
}

// onTerminalBlocked reclaims the controlling terminal for the shell's own
// process group, which is what the kernel expects after delivering
// TERMINAL_INPUT_BLOCKED / TERMINAL_OUTPUT_BLOCKED to a background job
// that tried to touch the terminal directly.
func (d *Dispatcher) onTerminalBlocked(sig os.Signal) {
	if err := d.term.Reclaim(); err != nil {
		logger.Debugf("signaling: reclaim terminal after %v: %v", sig, err)
	}
}
