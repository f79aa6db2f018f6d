// Package termctl performs the shell-startup signal disposition and
// controlling-terminal acquisition described in spec §4.F, and the small
// set of raw termios/pgrp primitives the job engine needs to hand the
// terminal back and forth with a foreground job.
//
// Grounded on the raw TIOCSPGRP/TIOCGPGRP ioctl idiom in driusan-gosh's
// main.go and the tcgetpgrp/tcsetpgrp helpers in atinylittleshell-gsh's
// exec_unix.go, reimplemented against golang.org/x/sys/unix instead of
// syscall.RawSyscall/unsafe so the shell gets typed errors.
package termctl

import (
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// State is the process-wide terminal/signal context captured at startup.
type State struct {
	Interactive  bool
	ShellPgid    int
	ShellTermios *unix.Termios
	TTYFd        int

	sigCh chan os.Signal
}

// Setup acquires the controlling terminal and puts the shell in its own
// process group, per §4.F. Non-interactive mode (stdin is not a
// controlling terminal, or a batch file was given) skips all of this and
// returns a State with Interactive set to false.
func Setup(interactive bool, ttyFd int) (*State, error) {

	if !interactive {
		return &State{Interactive: false}, nil
	}

	for {
		fg, err := unix.IoctlGetInt(ttyFd, unix.TIOCGPGRP)
		if err != nil {
			return nil, fmt.Errorf("smash: termctl: setup: tcgetpgrp: %w", err)
		}
		if fg == unix.Getpgrp() {
			break
		}
		_ = unix.Kill(-unix.Getpgrp(), unix.SIGTTIN)
	}

	// Go's signal.Notify installs a real (caught) handler rather than
	// SIG_IGN; POSIX resets caught dispositions to default across
	// execve, so children spawned afterwards see SIGINT/SIGTSTP/SIGTTIN/
	// SIGTTOU/SIGQUIT at their default disposition without the shell
	// needing (or being able, since os/exec forks+execs in one step with
	// no child-side hook) to reset them itself. The channel is drained by
	// a no-op goroutine so the shell process itself appears to ignore
	// these signals, matching the reference design's "ignore" contract.
	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGQUIT, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	go func() {
		for range sigCh {
		}
	}()

	if err := unix.Setpgid(0, 0); err != nil {
		return nil, fmt.Errorf("smash: termctl: setup: setpgid: %w", err)
	}
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return nil, fmt.Errorf("smash: termctl: setup: getpgid: %w", err)
	}

	if err := SetForeground(ttyFd, pgid); err != nil {
		return nil, fmt.Errorf("smash: termctl: setup: tcsetpgrp: %w", err)
	}

	termios, err := unix.IoctlGetTermios(ttyFd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("smash: termctl: setup: tcgetattr: %w", err)
	}

	return &State{
		Interactive:  true,
		ShellPgid:    pgid,
		ShellTermios: termios,
		TTYFd:        ttyFd,
		sigCh:        sigCh,
	}, nil
}

// Close stops signal delivery registered by Setup.
func (s *State) Close() {
	if s.sigCh != nil {
		signal.Stop(s.sigCh)
		close(s.sigCh)
	}
}

// SetForeground makes pgid the terminal's foreground process group.
func SetForeground(ttyFd, pgid int) error {
	return unix.IoctlSetPointerInt(ttyFd, unix.TIOCSPGRP, pgid)
}

// Foreground returns the terminal's current foreground process group.
func Foreground(ttyFd int) (int, error) {
	return unix.IoctlGetInt(ttyFd, unix.TIOCGPGRP)
}

// GetTermios snapshots the terminal's current attributes.
func GetTermios(ttyFd int) (*unix.Termios, error) {
	return unix.IoctlGetTermios(ttyFd, unix.TCGETS)
}

// SetTermios restores previously-captured terminal attributes, draining
// pending output and discarding pending input first (TCSETSF), matching
// the reference's "restore with drain-style flush" requirement.
func SetTermios(ttyFd int, t *unix.Termios) error {
	if t == nil {
		return nil
	}
	return unix.IoctlSetTermios(ttyFd, unix.TCSETSF, t)
}
