package job

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smash-shell/smash/internal/parser"
)

func newTestJob(raw string) *Job {
	return &Job{
		Input:  &parser.UserInput{Raw: raw},
		Status: Running,
		Pgid:   1,
	}
}

func TestTableInsertAssignsIncreasingIDs(t *testing.T) {
	table := NewTable()

	first := newTestJob("sleep 1 &")
	table.Insert(first)
	if first.JobID != 1 {
		t.Fatalf("first job id = %d, want 1", first.JobID)
	}

	second := newTestJob("sleep 2 &")
	table.Insert(second)
	if second.JobID != 2 {
		t.Fatalf("second job id = %d, want 2", second.JobID)
	}
}

func TestTableIDsRestartAfterDrain(t *testing.T) {
	table := NewTable()

	j := newTestJob("sleep 1 &")
	table.Insert(j)
	table.Remove(j)

	next := newTestJob("sleep 2 &")
	table.Insert(next)
	if next.JobID != 1 {
		t.Fatalf("job id after drain = %d, want 1", next.JobID)
	}
}

func TestTableLookup(t *testing.T) {
	table := NewTable()
	j := newTestJob("echo hi &")
	table.Insert(j)

	got, ok := table.Lookup(j.JobID)
	if !ok || got != j {
		t.Fatalf("Lookup(%d) = %v, %v", j.JobID, got, ok)
	}

	if _, ok := table.Lookup(999); ok {
		t.Fatal("Lookup of unknown id should fail")
	}
}

func TestFormatLineNonTerminal(t *testing.T) {
	j := newTestJob("sleep 100 &")
	j.JobID = 3
	j.Status = Suspended
	got := FormatLine(j)
	want := "[3] (suspended) sleep 100 &"
	if got != want {
		t.Fatalf("FormatLine = %q, want %q", got, want)
	}
}

func TestFormatLineTerminal(t *testing.T) {
	j := newTestJob("false")
	j.JobID = 1
	j.Status = Exited
	j.ExitCode = 1
	got := FormatLine(j)
	want := "[1] (exited 1) false"
	if got != want {
		t.Fatalf("FormatLine = %q, want %q", got, want)
	}
}

func TestListRemovesTerminalJobs(t *testing.T) {
	table := NewTable()

	running := newTestJob("sleep 100 &")
	running.Status = Running
	table.Insert(running)

	done := newTestJob("true")
	done.Status = Exited
	table.Insert(done)

	var buf bytes.Buffer
	table.List(&buf)

	out := buf.String()
	if !strings.Contains(out, "sleep 100") || !strings.Contains(out, "true") {
		t.Fatalf("List output missing a job: %q", out)
	}

	remaining := table.Jobs()
	if len(remaining) != 1 || remaining[0] != running {
		t.Fatalf("expected only the running job to remain, got %v", remaining)
	}
}

func TestHasPidAndMarkPidReaped(t *testing.T) {
	j := newTestJob("du | sort | wc -l &")
	j.Pids = []int{10, 11, 12}

	if !j.HasPid(11) {
		t.Fatal("expected HasPid(11) to be true")
	}

	if j.MarkPidReaped(11) {
		t.Fatal("MarkPidReaped should report false while pids remain")
	}
	if j.HasPid(11) {
		t.Fatal("11 should no longer be tracked")
	}

	j.MarkPidReaped(10)
	if !j.MarkPidReaped(12) {
		t.Fatal("MarkPidReaped should report true once all pids are reaped")
	}
}
