// Package lineio implements the Line Reader (spec §4.A): it wraps a
// chzyer/readline terminal the way the teacher's ebash package did, and
// produces one trimmed, comment-stripped line at a time, or the EOF
// sentinel.
package lineio

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// ErrEOF is the EOF sentinel: stdin closed (Ctrl-D on an empty line, or a
// batch file running out).
var ErrEOF = errors.New("lineio: eof")

// Reader reads lines from a readline.Instance, stripping comments and
// surrounding whitespace per §4.A. A line consisting only of
// whitespace/comment is reported to the caller as "" so the top-level
// loop can re-prompt.
type Reader struct {
	terminal *readline.Instance
}

// New wraps an already-configured readline terminal.
func New(terminal *readline.Instance) *Reader {
	return &Reader{terminal: terminal}
}

// SetPrompt updates the prompt text shown before the next read.
func (r *Reader) SetPrompt(prompt string) {
	r.terminal.SetPrompt(prompt)
}

// Terminal exposes the underlying instance so callers can update
// AutoComplete or close it at shutdown.
func (r *Reader) Terminal() *readline.Instance {
	return r.terminal
}

// ReadLine returns one trimmed, comment-stripped line, or ErrEOF.
// readline.ErrInterrupt (Ctrl-C on a partial line) is reported as an
// empty line so the caller simply re-prompts, matching the reference's
// "no in-line editing... required" scope.
func (r *Reader) ReadLine() (string, error) {

	line, err := r.terminal.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrEOF
		}
		return "", err
	}

	return stripCommentAndTrim(line), nil
}

func stripCommentAndTrim(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
