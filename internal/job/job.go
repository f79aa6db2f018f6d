// Package job implements the Job Table: the ordered, insertion-tracked
// collection of jobs a shell is running, plus the job-lifecycle operations
// (insert, lookup, listing, cancellation, draining) that don't require the
// fork/exec machinery of the job engine.
package job

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smash-shell/smash/internal/parser"
)

// Status is a job's position in the state machine of spec §4.E.2.
type Status int

const (
	New Status = iota
	Running
	Suspended
	Exited
	Aborted
	Canceled
)

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Exited:
		return "exited"
	case Aborted:
		return "aborted"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// terminal reports whether a Status is one of the two states a job can
// never leave once reaped.
func (s Status) terminal() bool {
	return s == Exited || s == Aborted
}

// Job is one submitted UserInput being tracked by the shell.
type Job struct {
	Input        *parser.UserInput
	JobID        int
	Pgid         int
	Status       Status
	ExitCode     int
	IsBackground bool
	SavedTermios *unix.Termios
	StartTime    time.Time

	// Pids holds the pids of this job's children still believed alive in
	// the kernel; it shrinks as each is reaped. Resolves the §9 open
	// question about the non-blocking reaper matching only a job's pgid:
	// matching a reaped pid against this set (rather than only the pgid)
	// still attributes a late-reporting pipeline follower to its job even
	// after the group leader is gone.
	Pids []int

	// TailPid is the pid of the pipeline's last command; its exit/signal
	// becomes the job's ExitCode, mirroring conventional pipeline $?
	// semantics (the reference spec does not otherwise disambiguate which
	// of several exiting children determines the job's code).
	TailPid int

	// UserTime/SysTime accumulate rusage across every reaped child, for
	// the -t resource-report line.
	UserTime time.Duration
	SysTime  time.Duration
}

// HasPid reports whether pid belongs to this job's tracked children.
func (j *Job) HasPid(pid int) bool {
	for _, p := range j.Pids {
		if p == pid {
			return true
		}
	}
	return false
}

// MarkPidReaped removes pid from the set of children still alive in the
// kernel. Returns true once no tracked pid remains.
func (j *Job) MarkPidReaped(pid int) (allReaped bool) {
	for i, p := range j.Pids {
		if p == pid {
			j.Pids = append(j.Pids[:i], j.Pids[i+1:]...)
			break
		}
	}
	return len(j.Pids) == 0
}

// Table is the insertion-ordered sequence of jobs the shell tracks.
type Table struct {
	jobs []*Job
}

// NewTable returns an empty Job Table.
func NewTable() *Table {
	return &Table{}
}

// Insert assigns the next job id and appends j to the table.
func (t *Table) Insert(j *Job) {
	if len(t.jobs) == 0 {
		j.JobID = 1
	} else {
		j.JobID = t.jobs[len(t.jobs)-1].JobID + 1
	}
	t.jobs = append(t.jobs, j)
}

// Remove unlinks j from the table.
func (t *Table) Remove(j *Job) {
	for i, candidate := range t.jobs {
		if candidate == j {
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			return
		}
	}
}

// Lookup returns the job with the given id, if tracked.
func (t *Table) Lookup(id int) (*Job, bool) {
	for _, j := range t.jobs {
		if j.JobID == id {
			return j, true
		}
	}
	return nil, false
}

// Jobs returns a snapshot of the currently tracked jobs, in insertion
// order.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// FormatLine renders one job per the §6 "jobs" listing format.
func FormatLine(j *Job) string {
	if j.Status.terminal() {
		return fmt.Sprintf("[%d] (%s %d) %s", j.JobID, j.Status, j.ExitCode, j.Input.Raw)
	}
	return fmt.Sprintf("[%d] (%s) %s", j.JobID, j.Status, j.Input.Raw)
}

// List prints every tracked job to w, then removes the ones that have
// reached a terminal state. This is the only place terminated jobs are
// reported to the user in interactive mode.
func (t *Table) List(w io.Writer) {
	var finished []*Job
	for _, j := range t.jobs {
		fmt.Fprintln(w, FormatLine(j))
		if j.Status.terminal() {
			finished = append(finished, j)
		}
	}
	for _, j := range finished {
		t.Remove(j)
	}
}

// CancelAll sends SIGCONT then SIGTERM to every live job's process group
// and marks each Canceled. SIGCONT runs first because a stopped group
// cannot act on SIGTERM until continued.
func (t *Table) CancelAll() {
	for _, j := range t.jobs {
		if j.Status == Running || j.Status == Suspended {
			_ = unix.Kill(-j.Pgid, unix.SIGCONT)
			_ = unix.Kill(-j.Pgid, unix.SIGTERM)
			j.Status = Canceled
		}
	}
}

// Killall sends SIGKILL to every job's process group that is still alive,
// as the last resort of the §9-flagged SIGTERM-escalation policy.
func (t *Table) Killall() {
	for _, j := range t.jobs {
		if j.Status == Canceled && groupAlive(j.Pgid) {
			_ = unix.Kill(-j.Pgid, unix.SIGKILL)
		}
	}
}

// groupAlive reports whether any process in pgid still exists, probed via
// the null signal.
func groupAlive(pgid int) bool {
	return unix.Kill(-pgid, 0) == nil
}

// WaitAll blocks until every non-terminal job's process group has been
// fully reaped, restarting on EINTR.
func (t *Table) WaitAll() {
	for _, j := range t.jobs {
		for j.Status != Exited && j.Status != Aborted && len(j.Pids) > 0 {
			var ws unix.WaitStatus
			pid, err := unix.Wait4(-j.Pgid, &ws, 0, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				break
			}
			if j.MarkPidReaped(pid) {
				if ws.Signaled() {
					j.Status = Aborted
					j.ExitCode = int(ws.Signal())
				} else {
					j.Status = Exited
					j.ExitCode = ws.ExitStatus()
				}
			}
		}
	}
}
