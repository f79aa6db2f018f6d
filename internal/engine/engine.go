// Package engine implements the Job Engine (spec §4.E): forking a
// pipeline's children, wiring their pipes and redirections, placing them
// in one process group, handing the controlling terminal back and forth,
// waiting/reaping, and driving the job state machine of §4.E.2.
package engine

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/smash-shell/smash/internal/completer"
	"github.com/smash-shell/smash/internal/job"
	"github.com/smash-shell/smash/internal/parser"
	"github.com/smash-shell/smash/internal/termctl"
)

// Engine owns the job table and terminal/signal context, and is the only
// thing in smash that forks children. It holds no copy of last_exit_code:
// that value has exactly one owner (the Shell), and is threaded through
// Submit/RunForeground as a parameter and a return value so the argv
// expansion a fresh job does and the $? a builtin reports can never
// diverge.
type Engine struct {
	Table       *job.Table
	Term        *termctl.State
	GlobEnabled bool
	Debug       bool
	ReportTimes bool
}

// New constructs an Engine bound to the given job table and terminal
// state.
func New(table *job.Table, term *termctl.State, globEnabled, debug, reportTimes bool) *Engine {
	return &Engine{Table: table, Term: term, GlobEnabled: globEnabled, Debug: debug, ReportTimes: reportTimes}
}

func (e *Engine) trace(format string, args ...any) {
	if e.Debug {
		fmt.Fprintf(os.Stderr, "smash: trace: "+format+"\n", args...)
	}
}

// leaderName resolves a job's pgid-leader process name via go-ps, for the
// -d trace line; it's a no-op when tracing is off so a non-debug run never
// pays for the lookup.
func (e *Engine) leaderName(pgid int) string {
	if !e.Debug {
		return ""
	}
	name, err := completer.ProcessName(pgid)
	if err != nil {
		return "?"
	}
	return name
}

// Submit inserts ui into the job table as a new job and launches it
// (exec_job, §4.E.1). lastExitCode is the caller's current $?, used to
// expand any "$?" argv component; it returns the (possibly unchanged)
// $? the caller should carry forward.
func (e *Engine) Submit(ui *parser.UserInput, lastExitCode int) (int, error) {
	j := &job.Job{
		Input:        ui,
		Status:       job.New,
		IsBackground: ui.IsBackground,
		StartTime:    time.Now(),
	}
	e.Table.Insert(j)
	return e.execJob(j, lastExitCode)
}

// execJob forks the pipeline's children, wires them together, and either
// waits synchronously (non-interactive / foreground) or returns
// immediately (background).
func (e *Engine) execJob(j *job.Job, lastExitCode int) (int, error) {

	commands := j.Input.Commands
	n := len(commands)

	var prevRead *os.File
	var attr *syscall.SysProcAttr
	started := make([]*exec.Cmd, 0, n)

	abort := func(err error) (int, error) {
		for _, ec := range started {
			if ec.Process != nil {
				_ = ec.Process.Kill()
			}
		}
		if prevRead != nil {
			_ = prevRead.Close()
		}
		j.Status = job.Aborted
		return lastExitCode, err
	}

	for k, cmd := range commands {

		stdin, err := e.resolveStdin(cmd, prevRead)
		if err != nil {
			return abort(err)
		}

		var pipeWrite *os.File
		var nextRead *os.File
		if k < n-1 {
			r, w, perr := os.Pipe()
			if perr != nil {
				return abort(fmt.Errorf("smash: exec: pipe: %w", perr))
			}
			nextRead, pipeWrite = r, w
		}

		stdout, err := e.resolveStdout(cmd, pipeWrite)
		if err != nil {
			return abort(err)
		}

		stderr, err := e.resolveStderr(cmd)
		if err != nil {
			closeIfOwned(stdin, stdout)
			return abort(err)
		}

		argv, err := parser.ExpandArgv(cmd, lastExitCode, e.GlobEnabled)
		if err != nil {
			closeIfOwned(stdin, stdout, stderr)
			return abort(err)
		}
		argv = tailColorArgs(argv, e.Term.Interactive && !j.IsBackground && stdout == os.Stdout)

		ec := exec.Command(argv[0], argv[1:]...)
		ec.Stdin, ec.Stdout, ec.Stderr = stdin, stdout, stderr

		if attr == nil {
			attr = &syscall.SysProcAttr{Setpgid: true}
		}
		ec.SysProcAttr = attr

		if startErr := ec.Start(); startErr != nil {
			closeIfOwned(stdin, stdout, stderr, pipeWrite)
			return abort(fmt.Errorf("smash: exec: %s: %w", argv[0], startErr))
		}

		if j.Pgid == 0 {
			j.Pgid = ec.Process.Pid
			attr.Pgid = j.Pgid
			if e.Term.Interactive && !j.IsBackground {
				// The child-side tcsetpgrp the reference design
				// prescribes isn't reachable: os/exec forks+execs in
				// one step with no hook to run code in the child
				// before execve. The parent performs it immediately
				// after Start() instead, accepting the (documented,
				// §4.E.1 "race note") narrow window before the first
				// child reaches exec.
				_ = termctl.SetForeground(e.Term.TTYFd, j.Pgid)
			}
		} else {
			// Race-safe dual-sided setpgid: the parent also joins
			// this child to the group in case it execs before the
			// kernel's own SysProcAttr.Pgid assignment lands.
			_ = unix.Setpgid(ec.Process.Pid, j.Pgid)
		}

		j.Pids = append(j.Pids, ec.Process.Pid)
		j.TailPid = ec.Process.Pid
		started = append(started, ec)

		closeParentCopies(stdin, stdout, pipeWrite)
		prevRead = nextRead
	}

	j.Status = job.Running
	e.trace("job %d forked, pgid=%d pids=%v leader=%s", j.JobID, j.Pgid, j.Pids, e.leaderName(j.Pgid))

	if !e.Term.Interactive {
		return e.waitSync(j, lastExitCode)
	}
	if j.IsBackground {
		e.trace("job %d running in background", j.JobID)
		return lastExitCode, nil
	}
	return e.waitForeground(j, lastExitCode)
}

// resolveStdin picks the command's stdin: an explicit redirect wins over
// the previous pipeline stage's output, per the pipe-vs-redirect
// precedence rule.
func (e *Engine) resolveStdin(cmd *parser.Command, prevRead *os.File) (*os.File, error) {
	if cmd.RedirectStdin != "" {
		f, err := os.Open(cmd.RedirectStdin)
		if err != nil {
			return nil, fmt.Errorf("smash: exec: %s: %w", cmd.RedirectStdin, err)
		}
		if prevRead != nil {
			_ = prevRead.Close()
		}
		return f, nil
	}
	if prevRead != nil {
		return prevRead, nil
	}
	return os.Stdin, nil
}

// resolveStdout picks the command's stdout: an explicit redirect wins
// over the next pipeline stage's input.
func (e *Engine) resolveStdout(cmd *parser.Command, pipeWrite *os.File) (*os.File, error) {
	if cmd.RedirectStdout != "" {
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if cmd.AppendStdout {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(cmd.RedirectStdout, flags, 0666)
		if err != nil {
			if pipeWrite != nil {
				_ = pipeWrite.Close()
			}
			return nil, fmt.Errorf("smash: exec: %s: %w", cmd.RedirectStdout, err)
		}
		if pipeWrite != nil {
			_ = pipeWrite.Close()
		}
		return f, nil
	}
	if pipeWrite != nil {
		return pipeWrite, nil
	}
	return os.Stdout, nil
}

func (e *Engine) resolveStderr(cmd *parser.Command) (*os.File, error) {
	if cmd.RedirectStderr == "" {
		return os.Stderr, nil
	}
	f, err := os.OpenFile(cmd.RedirectStderr, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("smash: exec: %s: %w", cmd.RedirectStderr, err)
	}
	return f, nil
}

// closeParentCopies closes the parent's copies of any real fds passed to
// the child, the way exec_job's fork-parent branch does: the kernel's own
// dup of these fds into the child keeps them open there.
func closeParentCopies(stdin, stdout, pipeWrite *os.File) {
	if stdin != os.Stdin {
		_ = stdin.Close()
	}
	if pipeWrite != nil && stdout == pipeWrite {
		_ = pipeWrite.Close()
	} else if stdout != os.Stdout && stdout != pipeWrite {
		_ = stdout.Close()
	}
}

func closeIfOwned(files ...*os.File) {
	for _, f := range files {
		if f != nil && f != os.Stdin && f != os.Stdout && f != os.Stderr {
			_ = f.Close()
		}
	}
}

// tailColorArgs mirrors the teacher's ls/grep "--color=always" preservation
// for interactive foreground pipelines. execJob passes isForeground only
// for a command whose stdout is the shell's own stdout (the unredirected
// tail of the pipeline), so piped or redirected output gets no colour codes.
func tailColorArgs(argv []string, isForeground bool) []string {
	if len(argv) == 0 || !isForeground {
		return argv
	}
	if (argv[0] == "ls" || argv[0] == "grep") && term.IsTerminal(int(os.Stdout.Fd())) {
		colored := make([]string, 0, len(argv)+1)
		colored = append(colored, argv[0], "--color=always")
		colored = append(colored, argv[1:]...)
		return colored
	}
	return argv
}
