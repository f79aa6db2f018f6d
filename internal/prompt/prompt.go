// Package prompt renders smash's interactive prompt: the literal string
// "smash> " (spec §6), styled by the painter's theme, with an optional
// badge noting how many jobs are currently suspended or backgrounded.
package prompt

import (
	"fmt"

	"github.com/smash-shell/smash/internal/painter"
)

// Literal is the prompt text spec §6 requires verbatim.
const Literal = "smash> "

// Update returns the prompt string to display. badgeCount is the number
// of non-terminal jobs that aren't in the foreground; when non-zero it is
// rendered as a "[N] " prefix in the painter's secondary color.
func Update(p painter.Painter, badgeCount int) string {
	if badgeCount == 0 {
		return p.Paint(p.PathBold, p.PathColour, Literal)
	}
	badge := p.Paint(p.GitBold, p.GitColour, fmt.Sprintf("[%d] ", badgeCount))
	return badge + p.Paint(p.PathBold, p.PathColour, Literal)
}
