// Command smash is the entry point for the smash shell: it parses the
// small set of flags spec §6 defines, rebinds stdin to a batch file
// when one is given, and runs the interactive loop.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smash-shell/smash/internal/shell"
)

func main() {

	debug := flag.Bool("d", false, "enable debug tracing")
	reportTimes := flag.Bool("t", false, "report job resource usage after each job completes, foreground or background")
	flag.Parse()

	ttyFd := int(os.Stdin.Fd())

	if path := flag.Arg(0); path != "" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "smash: %v\n", err)
			os.Exit(1)
		}
		os.Stdin = f
		ttyFd = -1
	}

	sh, err := shell.New(ttyFd, *debug, *reportTimes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smash: %v\n", err)
		os.Exit(1)
	}

	sh.Run()
}
