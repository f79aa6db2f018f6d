package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smash-shell/smash/internal/engine"
	"github.com/smash-shell/smash/internal/job"
)

type fakeHost struct {
	table        *job.Table
	exitCode     int
	exitRequests []int
}

func (f *fakeHost) Table() *job.Table        { return f.table }
func (f *fakeHost) Engine() *engine.Engine   { return nil }
func (f *fakeHost) LastExitCode() int        { return f.exitCode }
func (f *fakeHost) SetLastExitCode(code int) { f.exitCode = code }
func (f *fakeHost) RequestExit(code int)     { f.exitRequests = append(f.exitRequests, code) }

func newFakeHost() *fakeHost {
	return &fakeHost{table: job.NewTable()}
}

func TestIsBuiltinFullTokenOnly(t *testing.T) {
	if !IsBuiltin("exit") {
		t.Fatal("exit should be recognized as a builtin")
	}
	if IsBuiltin("exitfoo") {
		t.Fatal("exitfoo must not match the exit builtin (full-token equality only)")
	}
	if IsBuiltin("ls -la") {
		t.Fatal("ls is not a builtin")
	}
}

func TestCdChangesDirectory(t *testing.T) {

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(start)

	tmp := t.TempDir()
	if err := Execute("cd "+tmp, newFakeHost()); err != nil {
		t.Fatalf("cd returned error: %v", err)
	}

	got, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	wantReal, _ := filepath.EvalSymlinks(tmp)
	gotReal, _ := filepath.EvalSymlinks(got)
	if gotReal != wantReal {
		t.Fatalf("cwd after cd = %q, want %q", gotReal, wantReal)
	}
}

func TestCdTooManyArguments(t *testing.T) {
	if err := Execute("cd a b", newFakeHost()); err == nil {
		t.Fatal("expected error for too many cd arguments")
	}
}

func TestExitRequestsHostExit(t *testing.T) {
	host := newFakeHost()
	host.exitCode = 3
	if err := Execute("exit", host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(host.exitRequests) != 1 || host.exitRequests[0] != 3 {
		t.Fatalf("exit requests = %v, want [3]", host.exitRequests)
	}
}

func TestExitWithExplicitCode(t *testing.T) {
	host := newFakeHost()
	if err := Execute("exit 7", host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(host.exitRequests) != 1 || host.exitRequests[0] != 7 {
		t.Fatalf("exit requests = %v, want [7]", host.exitRequests)
	}
}

func TestFgUnknownJob(t *testing.T) {
	if err := Execute("fg 42", newFakeHost()); err == nil {
		t.Fatal("expected lookup failure for unknown job id")
	}
}

func TestKillUsage(t *testing.T) {
	if err := Execute("kill", newFakeHost()); err == nil {
		t.Fatal("expected usage error for bare kill")
	}
}
