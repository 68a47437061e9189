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

// Package status models the evaluator's internal status sentinels: values
// an evaluation can return that are not themselves user-visible exit codes
// (0..255) but carry a meaning the evaluator acts on before the status ever
// reaches the prompt.
package status

// Sentinel is an internal evaluation result. Values 0..255 are ordinary,
// user-visible exit statuses (or low bits of one); anything below Threshold
// is a sentinel the caller must canonicalize before showing it to a user.
type Sentinel int

// Threshold is the boundary below which a status is a sentinel rather than
// a real exit code. Kept as a named constant, rather than literal -128
// sprinkled through the evaluator, so every comparison site reads as
// "is this a sentinel" instead of repeating the magic number.
const Threshold Sentinel = -128

const (
	// Async means "the job producing this status has not completed yet";
	// it was launched in the background and the real status will arrive
	// on a later reaper sweep.
	Async Sentinel = Threshold - 1
	// JobTableFull means the launcher could not register the job because
	// every slot is occupied.
	JobTableFull Sentinel = Threshold - 2
	// Empty is the result of evaluating an EMPTY expression node.
	Empty Sentinel = Threshold - 3
	// NotABuiltin is the "not a recognized builtin" sentinel value. The
	// Built-in Executor in internal/shell does not return it: it reports
	// that case through dispatchBuiltin's handled=false result.
	NotABuiltin Sentinel = Threshold - 4
)

// Canonicalize maps an internal sentinel to the 0..255 range a user
// actually sees. Real exit statuses (already in range) pass through
// unchanged, which is what makes this idempotent (P6): canonicalizing an
// already-canonical value is a no-op.
func Canonicalize(s Sentinel) int {
	if s >= 0 && s <= 255 {
		return int(s)
	}
	if s < Threshold {
		// Every sentinel below Threshold surfaces as success at the
		// prompt: the real status either hasn't happened yet (Async) or
		// was already reported through another channel (job-table-full
		// notice, segfault/terminated notice).
		return 0
	}
	// Out-of-range but not a recognized sentinel: clamp into 0..255 the
	// way a real wait-status low byte would, rather than inventing a new
	// class of unrepresentable value.
	return int(uint8(s))
}
