package parser

import (
	"fmt"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
)

var homedirRe = regexp.MustCompile(`^~([a-zA-Z0-9_.-]*)?`)

// ExpandTilde resolves a leading "~" or "~user" prefix to the corresponding
// home directory, leaving the rest of the token untouched. Grounded on the
// tilde-replacement helper used by reference shells in the wider Go shell
// ecosystem; unlike the plain '$' expansion, tilde expansion is never
// deferred to a builtin's own rules, so it lives alongside glob expansion.
func ExpandTilde(s string) string {

	match := homedirRe.FindStringSubmatch(s)
	if match == nil {
		return s
	}

	var u *user.User
	var err error
	if match[1] != "" {
		u, err = user.Lookup(match[1])
	} else {
		u, err = user.Current()
	}
	if err != nil {
		return s
	}

	return strings.Replace(s, match[0], u.HomeDir, 1)
}

// ExpandArgv builds the final argv for a command: "$"-expansion per
// Expand, then optional glob/tilde expansion of any component whose first
// character is '*' or '~'. argv[0] (the program name) is never expanded.
// A glob with no matches is reported as an error, per the feature's
// "abort the child with a diagnostic" contract.
func ExpandArgv(cmd *Command, lastExitCode int, globEnabled bool) ([]string, error) {

	raw := cmd.Argv()
	if len(raw) == 0 {
		return nil, fmt.Errorf("smash: exec: empty command")
	}

	argv := make([]string, 0, len(raw))
	argv = append(argv, raw[0])

	for _, arg := range raw[1:] {

		arg = Expand(arg, lastExitCode)

		if !globEnabled || len(arg) == 0 || (arg[0] != '*' && arg[0] != '~') {
			argv = append(argv, arg)
			continue
		}

		if arg[0] == '~' {
			arg = ExpandTilde(arg)
		}

		if !strings.ContainsAny(arg, "*?[") {
			argv = append(argv, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("smash: exec: %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("smash: exec: %s: no matches", arg)
		}
		argv = append(argv, matches...)
	}

	return argv, nil
}
