package engine

import (
	"os"
	"reflect"
	"testing"

	"golang.org/x/term"
)

func TestTailColorArgsAddsFlagForLsAndGrep(t *testing.T) {
	if !isTerminalForTest() {
		t.Skip("stdout is not a terminal in this test environment")
	}
	got := tailColorArgs([]string{"ls", "-la"}, true)
	want := []string{"ls", "--color=always", "-la"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tailColorArgs = %v, want %v", got, want)
	}
}

func TestTailColorArgsLeavesOtherCommandsAlone(t *testing.T) {
	got := tailColorArgs([]string{"wc", "-l"}, true)
	want := []string{"wc", "-l"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tailColorArgs = %v, want %v", got, want)
	}
}

func TestTailColorArgsSkippedWhenNotForeground(t *testing.T) {
	got := tailColorArgs([]string{"ls"}, false)
	want := []string{"ls"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tailColorArgs = %v, want %v", got, want)
	}
}

func isTerminalForTest() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
