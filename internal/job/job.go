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

// Package job implements the shell's job table: a fixed-capacity registry
// of active and recently-finished child processes, their process groups,
// and their job-control state. It is the single piece of mutable state
// shared between the evaluator's main flow and the signal-handling
// goroutine (internal/signaling) and reaper (internal/reaper) — everything
// here is guarded by one mutex, the Go analogue of the C original's
// "accept the handler race" approach (see the package doc in
// internal/signaling for why Go lets us do better than that).
package job

import (
	"errors"
	"sync"

	"github.com/pboisselier/gosh/internal/metrics"
)

// Capacity is the fixed number of job-table slots (the design point named
// in the job-control spec this package implements).
const Capacity = 32

// CmdBufSize bounds the printable command name stored per job; longer
// names are truncated, matching the fixed display buffer of the original.
const CmdBufSize = 16

// Background records which side of the terminal a job was most recently
// placed on.
type Background int

const (
	FG Background = iota
	BG
)

func (b Background) String() string {
	if b == FG {
		return "FG"
	}
	return "BG"
}

// State is a job's observed lifecycle state.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Done"
	}
}

// Job is one entry of the job table. Zero value is the "free slot" value
// (PID == 0).
type Job struct {
	JID        int
	PID        int
	PGID       int
	Background Background
	State      State
	Status     int
	TermSig    int
	Cmd        string
}

var (
	// ErrFull is returned when every slot is occupied or reserved.
	ErrFull = errors.New("job table full")
	// ErrNotFound is returned by lookups that find no matching job.
	ErrNotFound = errors.New("no such job")
)

type slot struct {
	occupied bool
	reserved bool
	job      Job
}

// Table is the fixed-capacity job table (C1). The zero value is not
// usable; construct with NewTable.
type Table struct {
	mu         sync.Mutex
	slots      []slot
	cmdBufSize int
	fgIdx      int // -1 means no foreground job
	lastID     int // -1 means no last job
}

// NewTable returns an empty job table at the default capacity.
func NewTable() *Table {
	return NewTableWithCapacity(Capacity)
}

// NewTableWithCapacity returns an empty job table sized by config (falls
// back to Capacity slots if n <= 0), using the default command-name buffer
// length.
func NewTableWithCapacity(n int) *Table {
	return NewTableWithOptions(n, CmdBufSize)
}

// NewTableWithOptions returns an empty job table with both tunables
// config.Config exposes: slot capacity and the printable command-name
// buffer length (falling back to the package defaults for non-positive
// values).
func NewTableWithOptions(capacity, cmdBufSize int) *Table {
	if capacity <= 0 {
		capacity = Capacity
	}
	if cmdBufSize <= 0 {
		cmdBufSize = CmdBufSize
	}
	return &Table{slots: make([]slot, capacity), cmdBufSize: cmdBufSize, fgIdx: -1, lastID: -1}
}

// Cap reports the table's configured capacity.
func (t *Table) Cap() int {
	return len(t.slots)
}

func (t *Table) truncateCmd(cmd string) string {
	if len(cmd) <= t.cmdBufSize-1 {
		return cmd
	}
	return cmd[:t.cmdBufSize-1]
}

// Reserve finds the first free slot and marks it reserved without making
// it visible to Snapshot/FindByPID yet. This is the reserve-before-fork
// fix for the job-table-full-after-fork race: the launcher calls Reserve
// before forking, and only forks if it succeeds, so a full table never
// leaves an orphaned, unregistered child.
func (t *Table) Reserve() (jid int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !t.slots[i].occupied && !t.slots[i].reserved {
			t.slots[i].reserved = true
			return i, nil
		}
	}
	return 0, ErrFull
}

// FillReserved completes a Reserve'd slot once the child has actually been
// forked, and returns the resulting Job.
func (t *Table) FillReserved(jid, pid, pgid int, background Background, cmd string) Job {
	t.mu.Lock()
	s := &t.slots[jid]
	s.occupied = true
	s.reserved = false
	s.job = Job{
		JID:        jid,
		PID:        pid,
		PGID:       pgid,
		Background: background,
		State:      Running,
		Cmd:        t.truncateCmd(cmd),
	}
	if background == BG {
		t.lastID = jid
	}
	result := s.job
	t.mu.Unlock()

	metrics.JobsLaunched.WithLabelValues(background.String()).Inc()
	return result
}

// ReleaseReserved undoes a Reserve when the fork itself failed, freeing
// the slot back up without ever having made it visible.
func (t *Table) ReleaseReserved(jid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[jid] = slot{}
}

// Register is the one-step convenience form of Reserve+FillReserved, for
// callers (such as tests) that don't need the race-free two-step protocol.
func (t *Table) Register(pid, pgid int, background Background, cmd string) (Job, error) {
	jid, err := t.Reserve()
	if err != nil {
		return Job{}, err
	}
	return t.FillReserved(jid, pid, pgid, background, cmd), nil
}

// Unregister frees a slot, making its jid available for reuse.
func (t *Table) Unregister(jid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if jid < 0 || jid >= len(t.slots) || !t.slots[jid].occupied {
		return ErrNotFound
	}
	t.slots[jid] = slot{}
	if t.fgIdx == jid {
		t.fgIdx = -1
	}
	if t.lastID == jid {
		t.lastID = -1
	}
	return nil
}

// FindByPID returns the job with the given pid, if any occupied slot has it.
func (t *Table) FindByPID(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].occupied && t.slots[i].job.PID == pid {
			return t.slots[i].job, true
		}
	}
	return Job{}, false
}

// FindByCmd returns the first occupied job whose Cmd matches name exactly
// (used by the fg/bg "name" selection path).
func (t *Table) FindByCmd(name string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].occupied && t.slots[i].job.PID != 0 && t.slots[i].job.Cmd == name {
			return t.slots[i].job, true
		}
	}
	return Job{}, false
}

// MostRecentActive returns the non-Done job with the highest pid, the
// coarse "most recent" proxy the fg/bg default-target rule uses.
func (t *Table) MostRecentActive() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := Job{}
	found := false
	for i := range t.slots {
		if !t.slots[i].occupied || t.slots[i].job.State == Done {
			continue
		}
		if !found || t.slots[i].job.PID > best.PID {
			best = t.slots[i].job
			found = true
		}
	}
	return best, found
}

// LastJob returns the job most recently launched or resumed in the
// background, or ok=false if there is none, or it has since finished.
func (t *Table) LastJob() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastID < 0 || !t.slots[t.lastID].occupied {
		return Job{}, false
	}
	j := t.slots[t.lastID].job
	if j.State == Done {
		return Job{}, false
	}
	return j, true
}

// SetLastJob marks jid as the default target for a future bare fg/bg.
func (t *Table) SetLastJob(jid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if jid >= 0 && jid < len(t.slots) && t.slots[jid].occupied {
		t.lastID = jid
	}
}

// FGJob returns the current foreground job, if any (invariant P2: at most one).
func (t *Table) FGJob() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fgIdx < 0 || !t.slots[t.fgIdx].occupied {
		return Job{}, false
	}
	return t.slots[t.fgIdx].job, true
}

// SetForeground marks jid as the sole foreground job, demoting any
// previous one's bookkeeping (preserving P2).
func (t *Table) SetForeground(jid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if jid < 0 || jid >= len(t.slots) || !t.slots[jid].occupied {
		return ErrNotFound
	}
	t.slots[jid].job.Background = FG
	t.fgIdx = jid
	return nil
}

// ClearForeground drops the foreground job reference (without touching
// the slot's own Background field — callers that move a job to BG call
// SetBackground explicitly), keeping fg_job null outside the body of a
// foreground wait.
func (t *Table) ClearForeground() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fgIdx = -1
}

// SetBackground moves jid to the background side of the terminal and
// records it as the last job. Used by the bg builtin. If jid was the
// foreground job, the foreground reference is dropped as well.
func (t *Table) SetBackground(jid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if jid < 0 || jid >= len(t.slots) || !t.slots[jid].occupied {
		return ErrNotFound
	}
	t.slots[jid].job.Background = BG
	if t.fgIdx == jid {
		t.fgIdx = -1
	}
	t.lastID = jid
	return nil
}

// SetRunning marks a job Running (used after sending SIGCONT to a
// previously stopped job).
func (t *Table) SetRunning(jid int) error {
	return t.setState(jid, Running, 0, 0)
}

// SetStopped marks a job Stopped; invariant P3 requires it also be BG, so
// this forces Background=BG the way the original terminal-stop handler does.
func (t *Table) SetStopped(jid int) error {
	t.mu.Lock()
	if jid < 0 || jid >= len(t.slots) || !t.slots[jid].occupied {
		t.mu.Unlock()
		return ErrNotFound
	}
	t.slots[jid].job.State = Stopped
	t.slots[jid].job.Background = BG
	if t.fgIdx == jid {
		t.fgIdx = -1
	}
	t.lastID = jid
	t.mu.Unlock()
	return nil
}

// SetDone records a job's terminal state: either a normal exit (status,
// termsig=0) or a signal death (termsig!=0, matching invariant P6:
// termsig!=0 implies state=Done).
func (t *Table) SetDone(jid, status, termsig int) error {
	return t.setState(jid, Done, status, termsig)
}

func (t *Table) setState(jid int, state State, status, termsig int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if jid < 0 || jid >= len(t.slots) || !t.slots[jid].occupied {
		return ErrNotFound
	}
	t.slots[jid].job.State = state
	t.slots[jid].job.Status = status
	t.slots[jid].job.TermSig = termsig
	return nil
}

// Snapshot returns a copy of every occupied job, ordered by jid, for
// display (the `jobs` builtin) or scanning.
func (t *Table) Snapshot() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].occupied {
			out = append(out, t.slots[i].job)
		}
	}
	return out
}

// Size reports the number of occupied slots, published as the
// gosh_job_table_size gauge by internal/statusapi.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].occupied {
			n++
		}
	}
	return n
}

// SweepDone unregisters every slot in state Done. When display is
// non-nil, it is called for each swept job that was Background at the
// time it finished (matching the original's "only notify background
// completions" rule); notify gates whether display is invoked at all.
func (t *Table) SweepDone(notify bool, display func(Job)) {
	var toDisplay []Job
	t.mu.Lock()
	for i := range t.slots {
		if !t.slots[i].occupied || t.slots[i].job.State != Done {
			continue
		}
		j := t.slots[i].job
		if notify && j.Background == BG && display != nil {
			toDisplay = append(toDisplay, j)
		}
		t.slots[i] = slot{}
		if t.fgIdx == i {
			t.fgIdx = -1
		}
		if t.lastID == i {
			t.lastID = -1
		}
		metrics.JobsReaped.WithLabelValues("swept").Inc()
	}
	t.mu.Unlock()
	for _, j := range toDisplay {
		display(j)
	}
}

// OccupiedPIDs returns the pid of every occupied slot, for the reaper's
// non-blocking sweep to probe.
func (t *Table) OccupiedPIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].occupied {
			out = append(out, t.slots[i].job.PID)
		}
	}
	return out
}
