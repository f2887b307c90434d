package script

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tests need a POSIX sh")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	skipOnWindows(t)
	out, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", `printf "hello %s" "$WHO"`},
		Env:     map[string]string{"WHO": "world"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello world" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunStdin(t *testing.T) {
	skipOnWindows(t)
	out, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "cat"},
		Stdin:   "piped input",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "piped input" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	_, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", `echo "partial" ; echo "boom" >&2; exit 3`},
	})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("code = %d, want 3", exitErr.Code)
	}
	if !strings.Contains(exitErr.Stderr, "boom") || !strings.Contains(exitErr.Stdout, "partial") {
		t.Errorf("captured output = %+v", exitErr)
	}
	if !strings.Contains(exitErr.Error(), "boom") {
		t.Errorf("Error() = %q, want stderr included", exitErr.Error())
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	start := time.Now()
	_, err := Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if took := time.Since(start); took > 10*time.Second {
		t.Errorf("termination took %s, process not killed promptly", took)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("日", 10)
	got := truncate(s, 8)
	if !utf8.ValidString(got) {
		t.Errorf("truncate(%q, 8) = %q, invalid UTF-8", s, got)
	}
	if got != strings.Repeat("日", 2)+"…" {
		t.Errorf("truncate(%q, 8) = %q", s, got)
	}
	if truncate("short", 500) != "short" {
		t.Errorf("truncate must pass short strings through")
	}
}

func TestInterpreter(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"run.sh", "sh"},
		{"tool.PY", "python3"},
		{"hook.js", "node"},
		{"task.rb", "ruby"},
		{"plain", "sh"},
	}
	for _, tt := range tests {
		if got := Interpreter(tt.path); got != tt.want {
			t.Errorf("Interpreter(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
