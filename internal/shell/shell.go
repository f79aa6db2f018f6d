// Package shell implements the Top-level Loop (spec §4.G): boot the
// runtime, then repeatedly reap finished jobs, read a line, parse it,
// and either dispatch a builtin or submit a job to the engine, until
// EOF or "exit".
package shell

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/smash-shell/smash/internal/builtin"
	"github.com/smash-shell/smash/internal/completer"
	"github.com/smash-shell/smash/internal/config"
	"github.com/smash-shell/smash/internal/engine"
	"github.com/smash-shell/smash/internal/job"
	"github.com/smash-shell/smash/internal/lineio"
	"github.com/smash-shell/smash/internal/painter"
	"github.com/smash-shell/smash/internal/parser"
	"github.com/smash-shell/smash/internal/prompt"
	"github.com/smash-shell/smash/internal/termctl"
)

// Shell holds the whole runtime: the job table and engine, the line
// reader/completer/painter, and the small bit of exit-in-progress state
// a builtin's "exit" sets via RequestExit.
type Shell struct {
	cfg     *config.Config
	painter painter.Painter
	lines   *lineio.Reader
	comp    *completer.Completer
	table   *job.Table
	eng     *engine.Engine
	term    *termctl.State

	debug              bool
	descriptorBaseline int

	lastExitCode int
	exiting      bool
	exitCode     int
}

// Table satisfies builtin.Host.
func (s *Shell) Table() *job.Table { return s.table }

// Engine satisfies builtin.Host.
func (s *Shell) Engine() *engine.Engine { return s.eng }

// LastExitCode satisfies builtin.Host.
func (s *Shell) LastExitCode() int { return s.lastExitCode }

// SetLastExitCode satisfies builtin.Host: fg calls this to report the
// exit code of the job it waited on synchronously, since the Shell is
// the sole owner of $?.
func (s *Shell) SetLastExitCode(code int) { s.lastExitCode = code }

// RequestExit satisfies builtin.Host: the "exit" builtin calls this
// instead of calling os.Exit itself, so the top-level loop still gets
// to tear down running jobs and restore the terminal.
func (s *Shell) RequestExit(code int) {
	s.exiting = true
	s.exitCode = code
}

// New boots the shell runtime (the §4.F acquisition plus the ambient
// terminal/config/painter wiring the teacher's boot() performed):
// loads configuration, acquires the controlling terminal if ttyFd is a
// real tty, and constructs the readline-backed line reader, completer,
// job table and engine.
func New(ttyFd int, debug, reportTimes bool) (*Shell, error) {

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cfg = config.Default()
	}

	interactive := term.IsTerminal(ttyFd)

	termState, err := termctl.Setup(interactive, ttyFd)
	if err != nil {
		return nil, fmt.Errorf("smash: boot: %w", err)
	}

	readlineCfg := &readline.Config{
		HistoryFile:     cfg.Terminal.HistoryFile,
		HistoryLimit:    cfg.Terminal.HistoryLimit,
		InterruptPrompt: cfg.Terminal.InterruptPrompt,
		EOFPrompt:       cfg.Terminal.ExitPrompt,
	}
	terminal, err := readline.NewEx(readlineCfg)
	if err != nil {
		return nil, fmt.Errorf("smash: boot: failed to create new terminal instance: %w", err)
	}

	descriptors, err := os.ReadDir(fmt.Sprintf("/proc/%d/fd", os.Getpid()))
	baseline := 0
	if err == nil {
		baseline = len(descriptors)
	}

	table := job.NewTable()
	eng := engine.New(table, termState, cfg.Job.GlobExpansion, debug, reportTimes)

	return &Shell{
		cfg:                cfg,
		painter:            painter.NewPainter(cfg.Prompt),
		lines:              lineio.New(terminal),
		comp:               completer.New(),
		table:              table,
		eng:                eng,
		term:               termState,
		debug:              debug,
		descriptorBaseline: baseline,
	}, nil
}

// Run drives the top-level loop until EOF or "exit" is requested.
func (s *Shell) Run() {
	defer s.teardown()

	for {

		s.eng.ReapNonBlocking()
		s.traceDescriptorLeak()

		s.comp.Update(s.table)
		s.lines.Terminal().Config.AutoComplete = s.comp
		s.lines.SetPrompt(prompt.Update(s.painter, s.badgeCount()))

		line, err := s.lines.ReadLine()
		if err != nil {
			if err == lineio.ErrEOF {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		s.eng.ReapNonBlocking()
		if line == "" {
			continue
		}

		if builtin.IsBuiltin(line) {
			if err := builtin.Execute(line, s); err != nil {
				fmt.Fprintln(os.Stderr, err)
				s.lastExitCode = 1
			} else if fields := strings.Fields(line); len(fields) == 0 || fields[0] != "fg" {
				// fg already reported the foregrounded job's own exit
				// code via SetLastExitCode; every other builtin simply
				// succeeds with 0.
				s.lastExitCode = 0
			}
			if s.exiting {
				return
			}
			continue
		}

		ui, err := parser.Parse(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			s.lastExitCode = 1
			continue
		}
		if ui == nil {
			continue
		}

		code, err := s.eng.Submit(ui, s.lastExitCode)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			s.lastExitCode = 1
			continue
		}
		s.lastExitCode = code
	}
}

// traceDescriptorLeak is a -d diagnostic: it re-reads this process's own
// open-fd count and traces a delta from the boot-time baseline, which
// would otherwise indicate a pipe or redirect fd leaking across commands.
// It never aborts the loop, unlike the teacher's sysmon panic-on-leak.
func (s *Shell) traceDescriptorLeak() {
	if !s.debug {
		return
	}
	descriptors, err := os.ReadDir(fmt.Sprintf("/proc/%d/fd", os.Getpid()))
	if err != nil {
		return
	}
	if current := len(descriptors); current != s.descriptorBaseline {
		fmt.Fprintf(os.Stderr, "smash: trace: fd count %d, boot baseline %d\n", current, s.descriptorBaseline)
	}
}

// badgeCount returns the number of tracked jobs not currently in the
// foreground, for the prompt's "[N]" badge.
func (s *Shell) badgeCount() int {
	n := 0
	for _, j := range s.table.Jobs() {
		if j.Status == job.Exited || j.Status == job.Aborted {
			continue
		}
		if j.IsBackground || j.Status == job.Suspended {
			n++
		}
	}
	return n
}

// teardown cancels any still-running jobs, restores the terminal, and
// closes the line reader. Mirrors the teacher's defer shell.exit(), now
// also responsible for the job table drain the engine owns.
func (s *Shell) teardown() {
	grace := time.Duration(s.cfg.Job.SigtermGraceMS) * time.Millisecond
	s.eng.Teardown(grace)
	_ = s.lines.Terminal().Close()
	os.Exit(s.exitCode)
}
