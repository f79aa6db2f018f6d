// Package completer provides filesystem- and job-aware tab completion
// for smash. It adapts the teacher's directory/process-scanning
// completer: instead of offering arbitrary system pids to "kill", it
// offers live job ids from the Job Table, narrowing completion to the
// builtin vocabulary the spec actually defines.
package completer

import (
	"fmt"
	"os"
	"strconv"

	"github.com/chzyer/readline"
	gops "github.com/mitchellh/go-ps"

	"github.com/smash-shell/smash/internal/job"
)

// Completer adapts smash's dynamic environment (filesystem and job
// table) to the readline.AutoCompleter interface. It generates and
// updates command-specific completion suggestions on each loop
// iteration.
type Completer struct {
	readlineCompleter *readline.PrefixCompleter
}

// New returns a new Completer with an empty underlying PrefixCompleter.
func New() *Completer {
	return &Completer{readlineCompleter: readline.NewPrefixCompleter()}
}

// Update rebuilds the completion tree from the current working
// directory's entries and the job table's live job ids. jobs may be
// nil, in which case job-id completion is simply omitted.
func (c *Completer) Update(jobs *job.Table) {

	entries, err := os.ReadDir(".")
	if err != nil {
		return
	}

	var onlyDirs []readline.PrefixCompleterInterface
	var fileNames []readline.PrefixCompleterInterface

	for _, entry := range entries {
		if entry.IsDir() {
			fileNames = append(fileNames, readline.PcItem(entry.Name()+"/"))
			onlyDirs = append(onlyDirs, readline.PcItem(entry.Name()+"/"))
		} else {
			fileNames = append(fileNames, readline.PcItem(entry.Name()))
		}
	}

	var jobIDs []readline.PrefixCompleterInterface
	if jobs != nil {
		for _, j := range jobs.Jobs() {
			jobIDs = append(jobIDs, readline.PcItem(strconv.Itoa(j.JobID)))
		}
	}

	c.readlineCompleter = readline.NewPrefixCompleter(
		readline.PcItem("cd", onlyDirs...),
		readline.PcItem("fg", jobIDs...),
		readline.PcItem("bg", jobIDs...),
		readline.PcItem("kill", jobIDs...),
		readline.PcItem("jobs"),
		readline.PcItem("pwd"),
		readline.PcItem("echo", fileNames...),
		readline.PcItem("exit"),
	)

}

// Do delegates the completion logic to the underlying PrefixCompleter.
// It satisfies the readline.AutoCompleter interface.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	return c.readlineCompleter.Do(line, pos)
}

// ProcessName looks up the executable name of a running pid via go-ps,
// used by the Job Engine's -d trace to annotate a freshly-forked job
// with what its pgid leader actually is.
func ProcessName(pid int) (string, error) {
	p, err := gops.FindProcess(pid)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("completer: pid %d: not found", pid)
	}
	return p.Executable(), nil
}
