package engine

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/smash-shell/smash/internal/job"
	"github.com/smash-shell/smash/internal/parser"
)

func newWaitTestJob(tailPid int, pids ...int) *job.Job {
	return &job.Job{
		Input:   &parser.UserInput{Raw: "test"},
		Status:  job.Running,
		Pids:    append([]int{}, pids...),
		TailPid: tailPid,
	}
}

func TestApplyWaitStatusExitedSetsCodeFromTailPid(t *testing.T) {
	j := newWaitTestJob(11, 10, 11)

	applyWaitStatus(j, 10, unix.WaitStatus(0))
	if j.Status != job.Running {
		t.Fatalf("status after non-tail exit = %v, want Running (still one pid left)", j.Status)
	}

	applyWaitStatus(j, 11, unix.WaitStatus(3<<8))
	if j.Status != job.Exited {
		t.Fatalf("status after tail exit = %v, want Exited", j.Status)
	}
	if j.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", j.ExitCode)
	}
	if len(j.Pids) != 0 {
		t.Fatalf("Pids should be empty once both are reaped, got %v", j.Pids)
	}
}

func TestApplyWaitStatusSignaled(t *testing.T) {
	j := newWaitTestJob(10, 10)

	applyWaitStatus(j, 10, unix.WaitStatus(9)) // SIGKILL = 9
	if j.Status != job.Aborted {
		t.Fatalf("status after signaled exit = %v, want Aborted", j.Status)
	}
	if j.ExitCode != 9 {
		t.Fatalf("ExitCode = %d, want 9 (terminating signal)", j.ExitCode)
	}
}

func TestApplyWaitStatusStoppedAndContinued(t *testing.T) {
	j := newWaitTestJob(10, 10)

	applyWaitStatus(j, 10, unix.WaitStatus(0x7f|(unix.SIGTSTP<<8)))
	if j.Status != job.Suspended {
		t.Fatalf("status after stop = %v, want Suspended", j.Status)
	}

	applyWaitStatus(j, 10, unix.WaitStatus(0xffff))
	if j.Status != job.Running {
		t.Fatalf("status after continue = %v, want Running", j.Status)
	}
}

func TestFindOwnerMatchesByTrackedPid(t *testing.T) {
	table := job.NewTable()
	e := &Engine{Table: table}

	j := newWaitTestJob(20, 20, 21)
	table.Insert(j)

	if owner := e.findOwner(21); owner != j {
		t.Fatalf("findOwner(21) = %v, want %v", owner, j)
	}
	if owner := e.findOwner(999); owner != nil {
		t.Fatalf("findOwner(999) = %v, want nil", owner)
	}
}
