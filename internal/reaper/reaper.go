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

// Package reaper reconciles OS process state with the job table (C3). It
// never blocks: every wait is WNOHANG, and it is invoked both
// asynchronously (internal/signaling, on SIGCHLD) and synchronously (the
// evaluator's top-level entry point, after every evaluation), matching
// the two invocation sites the job-control spec calls for.
package reaper

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"github.com/pboisselier/gosh/internal/job"
	"github.com/pboisselier/gosh/internal/logger"
	"github.com/pboisselier/gosh/internal/metrics"
)

// Reaper owns a background goroutine that sweeps the job table every time
// the kernel reports SIGCHLD, supervised by a tomb.Tomb the same way
// pebble's own reaper is (Start/Stop, Kill+Wait to stop).
type Reaper struct {
	table *job.Table

	mu      sync.Mutex
	started bool
	tb      tomb.Tomb
}

// New returns a Reaper that sweeps tbl.
func New(tbl *job.Table) *Reaper {
	return &Reaper{table: tbl}
}

// Start installs the SIGCHLD watcher goroutine. Calling Start twice is a no-op.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	r.tb = tomb.Tomb{}
	r.tb.Go(r.watch)
	return nil
}

// Stop tears down the watcher goroutine and waits for it to exit.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.tb.Kill(nil)
	err := r.tb.Wait()

	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
	return err
}

func (r *Reaper) watch() error {
	logger.Debugf("Reaper started, waiting for SIGCHLD.")
	sigChld := make(chan os.Signal, 1)
	signal.Notify(sigChld, unix.SIGCHLD)
	defer signal.Stop(sigChld)
	for {
		select {
		case <-sigChld:
			r.SweepOnce(nil)
		case <-r.tb.Dying():
			logger.Debugf("Reaper stopped.")
			return nil
		}
	}
}

// SweepOnce performs one non-blocking pass over every occupied job-table
// slot. For each pid it tries a WNOHANG wait that also reports stop and
// continue transitions; if the wait reports nothing, it probes with a
// signal-0 kill to self-heal a slot whose process has vanished without
// ever being reaped here (e.g. a child whose parent-death semantics we
// don't fully control). When display is non-nil, it is called for the
// display line of any job observed to become Done in this sweep and that
// was, at that moment, running in the background. The SIGCHLD watcher and
// the evaluator's top-level sweep both pass nil; the evaluator prints
// background completions when it sweeps Done jobs out of the table.
func (r *Reaper) SweepOnce(display func(job.Job)) {
	for _, pid := range r.table.OccupiedPIDs() {
		r.sweepPID(pid, display)
	}
}

func (r *Reaper) sweepPID(pid int, display func(job.Job)) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	if err != nil || wpid == 0 {
		if err == nil {
			// Nothing changed. Self-healing probe: if the process no
			// longer exists but we never reaped it (e.g. it was
			// reparented away before dying), drop the stale slot.
			if probeErr := unix.Kill(pid, 0); probeErr == unix.ESRCH {
				if j, ok := r.table.FindByPID(pid); ok {
					logger.Debugf("Reaper self-healing stale job %d (pid %d).", j.JID, pid)
					r.table.Unregister(j.JID)
					metrics.JobsReaped.WithLabelValues("self-heal").Inc()
				}
			}
		}
		return
	}

	j, ok := r.table.FindByPID(pid)
	if !ok {
		return
	}

	switch {
	case ws.Exited():
		r.table.SetDone(j.JID, ws.ExitStatus(), 0)
		metrics.JobsReaped.WithLabelValues("exited").Inc()
	case ws.Signaled():
		r.table.SetDone(j.JID, 0, int(ws.Signal()))
		metrics.JobsReaped.WithLabelValues("signaled").Inc()
	case ws.Stopped():
		r.table.SetStopped(j.JID)
	case ws.Continued():
		r.table.SetRunning(j.JID)
	default:
		return
	}

	if display == nil {
		return
	}
	if updated, ok := r.table.FindByPID(pid); ok && updated.State == job.Done && updated.Background == job.BG {
		display(updated)
	}
}
