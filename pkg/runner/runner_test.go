package runner

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(res.Stdout); got != "hello" {
		t.Errorf("Stdout = %q, want hello", got)
	}
}

func TestRunReportsNonZeroExitWithoutError(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for non-zero exit", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain oops", res.Stderr)
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("Run() succeeded for missing binary, want error")
	}
}

func TestRunTimeout(t *testing.T) {
	r := &ExecRunner{Timeout: 50 * time.Millisecond}
	_, err := r.Run(context.Background(), "sleep", "5")
	if err == nil {
		t.Fatal("Run() succeeded, want timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	var gotName string
	var gotArgs []string
	f := Func(func(ctx context.Context, name string, args ...string) (Result, error) {
		gotName = name
		gotArgs = args
		return Result{Stdout: "scripted"}, nil
	})

	res, err := f.Run(context.Background(), "zfs", "list", "-H")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "scripted" {
		t.Errorf("Stdout = %q, want scripted", res.Stdout)
	}
	if gotName != "zfs" || len(gotArgs) != 2 {
		t.Errorf("captured call = %s %v, want zfs [list -H]", gotName, gotArgs)
	}
}
