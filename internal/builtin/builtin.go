// Package builtin implements the shell's fixed builtin vocabulary
// (spec §4.C): exit, cd, pwd, echo, jobs, fg, bg, kill, and the comment
// no-op "#". Builtins run in the shell process itself, never via
// fork/exec, and never redirect or pipeline.
package builtin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/smash-shell/smash/internal/engine"
	"github.com/smash-shell/smash/internal/job"
	"github.com/smash-shell/smash/internal/parser"
)

// names is the fixed builtin table. Matching is by full-token equality,
// resolving the §9 open question about the reference's strncmp-by-length
// match (which would wrongly treat "exitfoo" as "exit").
var names = map[string]struct{}{
	"exit": {},
	"cd":   {},
	"pwd":  {},
	"echo": {},
	"jobs": {},
	"fg":   {},
	"bg":   {},
	"kill": {},
	"#":    {},
}

// Host is the shell state a builtin needs: the job table, the job engine
// (for fg/bg), $?, and a way to request the shell's own exit. $? has
// exactly one owner (the Shell); SetLastExitCode is how fg reports back
// the exit code of a job it waited on synchronously.
type Host interface {
	Table() *job.Table
	Engine() *engine.Engine
	LastExitCode() int
	SetLastExitCode(code int)
	RequestExit(code int)
}

// IsBuiltin reports whether line's first whitespace-delimited token names
// a builtin.
func IsBuiltin(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	_, ok := names[fields[0]]
	return ok
}

// Execute dispatches line to its builtin handler.
func Execute(line string, host Host) error {

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "exit":
		return exitBuiltin(fields, host)
	case "cd":
		return cd(fields, host)
	case "pwd":
		return pwd()
	case "echo":
		return echo(fields, host)
	case "jobs":
		return jobsList(host)
	case "fg":
		return fg(fields, host)
	case "bg":
		return bg(fields, host)
	case "kill":
		return killJob(fields, host)
	case "#":
		return nil
	}

	return fmt.Errorf("smash: %s: not a builtin", fields[0])
}

func exitBuiltin(fields []string, host Host) error {
	code := host.LastExitCode()
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("smash: exit: %s: numeric argument required", fields[1])
		}
		code = n
	}
	host.RequestExit(code)
	return nil
}

func cd(fields []string, host Host) error {

	var dir string
	switch {
	case len(fields) == 1:
		dir = os.Getenv("HOME")
		if dir == "" {
			return fmt.Errorf("smash: cd: HOME not set")
		}
	case len(fields) > 2:
		return fmt.Errorf("smash: cd: too many arguments")
	default:
		dir = parser.Expand(fields[1], host.LastExitCode())
		dir = parser.ExpandTilde(dir)
	}

	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("smash: cd: %w", err)
	}
	return nil
}

func pwd() error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("smash: pwd: %w", err)
	}
	fmt.Println(dir)
	return nil
}

func echo(fields []string, host Host) error {
	args := make([]string, len(fields)-1)
	for i, f := range fields[1:] {
		args[i] = parser.Expand(f, host.LastExitCode())
	}
	fmt.Println(strings.Join(args, " "))
	return nil
}

func jobsList(host Host) error {
	host.Table().List(os.Stdout)
	return nil
}

func fg(fields []string, host Host) error {
	id, err := jobArg(fields, "fg")
	if err != nil {
		return err
	}
	j, ok := host.Table().Lookup(id)
	if !ok {
		return fmt.Errorf("smash: fg: %d: no such job", id)
	}
	code, err := host.Engine().RunForeground(j, j.Status == job.Suspended, host.LastExitCode())
	if err != nil {
		return err
	}
	host.SetLastExitCode(code)
	return nil
}

func bg(fields []string, host Host) error {
	id, err := jobArg(fields, "bg")
	if err != nil {
		return err
	}
	j, ok := host.Table().Lookup(id)
	if !ok {
		return fmt.Errorf("smash: bg: %d: no such job", id)
	}
	return host.Engine().RunBackground(j, j.Status == job.Suspended)
}

func jobArg(fields []string, name string) (int, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("smash: %s: usage: %s job_id", name, name)
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("smash: %s: %s: not a job id", name, fields[1])
	}
	return id, nil
}

// killJob implements "kill -SIG N": parse a signed integer signal after
// the leading '-', then the job id, and killpg the job's process group.
func killJob(fields []string, host Host) error {

	if len(fields) != 3 || !strings.HasPrefix(fields[1], "-") {
		return fmt.Errorf("smash: kill: usage: kill -SIG job_id")
	}

	sig, err := strconv.Atoi(fields[1][1:])
	if err != nil {
		return fmt.Errorf("smash: kill: %s: not a signal number", fields[1])
	}

	id, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("smash: kill: %s: not a job id", fields[2])
	}

	j, ok := host.Table().Lookup(id)
	if !ok {
		return fmt.Errorf("smash: kill: %d: no such job", id)
	}
	if j.Status != job.Running && j.Status != job.Suspended {
		return fmt.Errorf("smash: kill: %d: job is not running", id)
	}

	if err := unix.Kill(-j.Pgid, unix.Signal(sig)); err != nil {
		return fmt.Errorf("smash: kill: (%d) - %w", j.Pgid, err)
	}
	return nil
}
