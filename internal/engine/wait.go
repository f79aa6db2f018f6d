package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smash-shell/smash/internal/job"
	"github.com/smash-shell/smash/internal/termctl"
)

// waitSync blocks for the whole group to finish, for non-interactive mode
// (every job there is waited for synchronously, background or not).
// lastExitCode is returned unchanged if a wait itself errors out.
func (e *Engine) waitSync(j *job.Job, lastExitCode int) (int, error) {
	for len(j.Pids) > 0 {
		if err := e.reapOnce(j, unix.WUNTRACED); err != nil {
			return lastExitCode, err
		}
	}
	e.reportTimes(j)
	return j.ExitCode, nil
}

// waitForeground implements the §4.E.3 foreground wait protocol: block
// with WUNTRACED until the group either finishes or stops, then reclaim
// the terminal. lastExitCode is returned unchanged unless the job reaches
// Exited, matching §4.E.3's "if the resulting status is Exited, update
// last_exit_code" (Aborted/Suspended leave it alone).
func (e *Engine) waitForeground(j *job.Job, lastExitCode int) (int, error) {

	for len(j.Pids) > 0 && j.Status != job.Suspended {
		if err := e.reapOnce(j, unix.WUNTRACED); err != nil {
			return lastExitCode, err
		}
	}

	if e.Term.Interactive {
		j.SavedTermios, _ = termctl.GetTermios(e.Term.TTYFd)
		_ = termctl.SetForeground(e.Term.TTYFd, e.Term.ShellPgid)
		_ = termctl.SetTermios(e.Term.TTYFd, e.Term.ShellTermios)
		e.assertForeground()
	}

	switch j.Status {
	case job.Exited:
		lastExitCode = j.ExitCode
		e.reportTimes(j)
	case job.Aborted:
		e.reportTimes(j)
	case job.Suspended:
		fmt.Println(job.FormatLine(j))
	}

	return lastExitCode, nil
}

// reapOnce performs one Wait4 call for j's process group and applies the
// resulting state transition (§4.E.2), restarting on EINTR. It returns
// once a status-changing wait completes; callers loop until the job
// leaves the set of pids still alive, or stops.
func (e *Engine) reapOnce(j *job.Job, flags int) error {

	var ws unix.WaitStatus
	var ru unix.Rusage
	var pid int
	var err error

	for {
		pid, err = unix.Wait4(-j.Pgid, &ws, flags, &ru)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		break
	}
	if err != nil {
		// ECHILD means the group is already fully reaped; treat it as
		// "done" rather than a hard failure so callers' loops exit.
		if errors.Is(err, unix.ECHILD) {
			j.Pids = nil
			if j.Status != job.Exited && j.Status != job.Aborted {
				j.Status = job.Exited
			}
			return nil
		}
		return fmt.Errorf("smash: wait: %w", err)
	}
	if pid == 0 {
		return nil // WNOHANG: nothing changed state
	}

	e.trace("job %d: pid %d changed state", j.JobID, pid)
	j.UserTime += time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
	j.SysTime += time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond

	applyWaitStatus(j, pid, ws)
	return nil
}

// applyWaitStatus drives the §4.E.2 state machine from one reaped pid's
// status, shared by the blocking foreground wait and the non-blocking
// reaper.
func applyWaitStatus(j *job.Job, pid int, ws unix.WaitStatus) {
	switch {
	case ws.Stopped():
		j.Status = job.Suspended

	case ws.Continued():
		j.Status = job.Running

	case ws.Exited():
		if pid == j.TailPid {
			j.ExitCode = ws.ExitStatus()
		}
		if j.MarkPidReaped(pid) && j.Status != job.Suspended {
			j.Status = job.Exited
		}

	case ws.Signaled():
		if pid == j.TailPid {
			j.ExitCode = int(ws.Signal())
		}
		if j.MarkPidReaped(pid) {
			j.Status = job.Aborted
		}
	}
}

// ReapNonBlocking is the §4.E.4 non-blocking reaper invoked before and
// after each line read: it drains every pending state change for every
// process in any tracked job without blocking. This is also the only
// place a background job's completion is observed, so it accumulates
// rusage and emits the -t resource report exactly like the foreground
// wait path does.
func (e *Engine) ReapNonBlocking() {

	for {
		var ws unix.WaitStatus
		var ru unix.Rusage
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, &ru)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}

		j := e.findOwner(pid)
		if j == nil {
			e.trace("reaper: pid %d has no owning job", pid)
			continue
		}

		j.UserTime += time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
		j.SysTime += time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond

		applyWaitStatus(j, pid, ws)

		if j.Status == job.Exited || j.Status == job.Aborted {
			e.reportTimes(j)
		}
	}
}

// findOwner returns the tracked job whose children include pid.
func (e *Engine) findOwner(pid int) *job.Job {
	for _, j := range e.Table.Jobs() {
		if j.HasPid(pid) {
			return j
		}
	}
	return nil
}

// RunForeground implements run_in_foreground (§4.E.3): fg on a job that
// is New, Suspended, or Running-in-background. A job already in the
// foreground is rejected as a no-op error. lastExitCode is the caller's
// current $?, passed through and returned per waitForeground's contract.
func (e *Engine) RunForeground(j *job.Job, sendCont bool, lastExitCode int) (int, error) {

	if j.Status == job.Running && !j.IsBackground {
		return lastExitCode, fmt.Errorf("smash: fg: job %d is already in the foreground", j.JobID)
	}
	if j.Status != job.New && j.Status != job.Suspended && j.Status != job.Running {
		return lastExitCode, fmt.Errorf("smash: fg: job %d is not resumable", j.JobID)
	}

	wasSuspended := j.Status == job.Suspended
	j.IsBackground = false
	j.Status = job.Running

	if e.Term.Interactive {
		_ = termctl.SetForeground(e.Term.TTYFd, j.Pgid)
	}

	if sendCont && wasSuspended {
		_ = termctl.SetTermios(e.Term.TTYFd, j.SavedTermios)
		_ = unix.Kill(-j.Pgid, unix.SIGCONT)
	}

	fmt.Println(j.Input.Raw)
	return e.waitForeground(j, lastExitCode)
}

// RunBackground implements run_in_background (§4.E.3): bg on a job that
// is New or Suspended.
func (e *Engine) RunBackground(j *job.Job, sendCont bool) error {

	if j.Status != job.New && j.Status != job.Suspended {
		return fmt.Errorf("smash: bg: job %d is already running in the background", j.JobID)
	}

	j.IsBackground = true
	j.Status = job.Running

	if sendCont {
		_ = unix.Kill(-j.Pgid, unix.SIGCONT)
	}

	fmt.Printf("[%d] %s &\n", j.JobID, j.Input.Raw)
	return nil
}

// Teardown implements the §4.E.5 / §9-resolved shell exit handler:
// cancel every live job (SIGCONT+SIGTERM), wait up to grace for them to
// die, escalate to SIGKILL, then block until every group is reaped.
func (e *Engine) Teardown(grace time.Duration) {

	e.Table.CancelAll()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) && anyAlive(e.Table) {
		for _, j := range e.Table.Jobs() {
			if len(j.Pids) > 0 {
				_ = e.reapOnce(j, unix.WNOHANG)
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	e.Table.Killall()
	e.Table.WaitAll()

	if e.Term.Interactive {
		_ = termctl.SetForeground(e.Term.TTYFd, e.Term.ShellPgid)
		_ = termctl.SetTermios(e.Term.TTYFd, e.Term.ShellTermios)
		e.Term.Close()
	}
}

func anyAlive(table *job.Table) bool {
	for _, j := range table.Jobs() {
		if len(j.Pids) > 0 {
			return true
		}
	}
	return false
}

// assertForeground checks invariant §8.2 — once the shell reclaims the
// terminal, it must actually be the foreground group — and traces a
// violation under -d rather than silently trusting the ioctl calls above
// to have succeeded.
func (e *Engine) assertForeground() {
	if !e.Debug {
		return
	}
	fg, err := termctl.Foreground(e.Term.TTYFd)
	if err != nil {
		e.trace("assertForeground: tcgetpgrp: %v", err)
		return
	}
	if fg != e.Term.ShellPgid {
		e.trace("assertForeground: violated invariant: foreground pgid %d != shell pgid %d", fg, e.Term.ShellPgid)
	}
}

func (e *Engine) reportTimes(j *job.Job) {
	if !e.ReportTimes {
		return
	}
	real := time.Since(j.StartTime).Seconds()
	fmt.Fprintf(os.Stderr, "TIMES: real=%.6fs user=%.6fs sys=%.6fs\n",
		real, j.UserTime.Seconds(), j.SysTime.Seconds())
}
