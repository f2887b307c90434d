// Package script runs plugin subprocesses with a timeout and a constructed
// environment. The script executor, the shortcut executor, and script tools
// all go through Run, so termination discipline lives in one place.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a subprocess that declares no timeout of its own.
const DefaultTimeout = 30 * time.Second

// ErrTimeout marks a process that was terminated for exceeding its timeout.
var ErrTimeout = errors.New("process timed out")

// ExitError carries a non-zero exit along with captured output, so the
// caller can show the user what the process said before failing.
type ExitError struct {
	Code   int
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit status %d", e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + truncate(s, 500)
	}
	return msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so the cut never splits UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// Options describes one subprocess invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
	Stdin   string
	Timeout time.Duration
}

// Run executes the process and returns its stdout. The process gets an
// interrupt when the timeout fires and a kill three seconds later if it
// ignores that.
func Run(ctx context.Context, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Interrupt first so the child can clean up, kill if it lingers.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 3 * time.Second

	start := time.Now()
	err := cmd.Run()
	log.Debug().Str("command", opts.Command).Dur("took", time.Since(start)).Msg("subprocess finished")

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Code:   exitErr.ExitCode(),
				Stdout: stdout.String(),
				Stderr: stderr.String(),
			}
		}
		return "", fmt.Errorf("run %s: %w", opts.Command, err)
	}
	return stdout.String(), nil
}

// EnvName normalizes a setting key into an environment variable name:
// uppercased, non-alphanumerics collapsed to underscores.
func EnvName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Interpreter infers the interpreter for a script file from its extension.
func Interpreter(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sh":
		return "sh"
	case ".bash":
		return "bash"
	case ".py":
		return "python3"
	case ".js", ".mjs":
		return "node"
	case ".rb":
		return "ruby"
	default:
		return "sh"
	}
}
