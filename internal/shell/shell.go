// Package shell runs external commands for the asset handlers, capturing
// their output and optionally forwarding it to the progress event stream
// instead of the real stdio streams.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// OutputDestination selects where subprocess output goes.
type OutputDestination = progress.OutputDestination

const (
	// OutputStdio writes subprocess output to this process's stdout/stderr.
	OutputStdio = progress.OutputStdio

	// OutputIgnore discards subprocess output.
	OutputIgnore = progress.OutputIgnore

	// OutputPublish forwards subprocess output as shell lifecycle events.
	OutputPublish = progress.OutputPublish
)

// EventPublisher receives the events a command produces while running.
type EventPublisher func(eventType progress.EventType, message string)

// Options configure a single command invocation.
type Options struct {
	// WorkingDir is the directory the command runs in
	WorkingDir string

	// Env is appended to the current environment
	Env map[string]string

	// Input is written to the command's stdin when non-empty
	Input string

	// Quiet captures output without forwarding it anywhere
	Quiet bool

	// OutputDestination selects where output goes when not Quiet
	OutputDestination OutputDestination

	// Publisher receives debug and shell lifecycle events; nil disables all
	// event emission
	Publisher EventPublisher
}

// Run executes the command, returning its collected stdout. A non-zero exit
// produces an error carrying the rendered command line and the stderr tail.
func Run(ctx context.Context, command []string, opts Options) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("shell: empty command")
	}

	rendered := renderCommandLine(command)
	publishLifecycle := !opts.Quiet && opts.OutputDestination == OutputPublish && opts.Publisher != nil
	if opts.Publisher != nil {
		opts.Publisher(progress.EventDebug, rendered)
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if opts.Input != "" {
		cmd.Stdin = strings.NewReader(opts.Input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(appendForwarders(&stdout, opts, os.Stdout)...)
	cmd.Stderr = io.MultiWriter(appendForwarders(&stderr, opts, os.Stderr)...)

	if publishLifecycle {
		opts.Publisher(progress.EventShellOpen, rendered)
	}

	err := cmd.Run()

	if publishLifecycle {
		opts.Publisher(progress.EventShellClose, rendered)
	}

	if err != nil {
		out := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Command: rendered,
				Code:    exitErr.ExitCode(),
				Stderr:  out,
			}
		}
		return "", fmt.Errorf("%s: %w", rendered, err)
	}

	return stdout.String(), nil
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	// Command is the rendered command line
	Command string

	// Code is the process exit code
	Code int

	// Stderr is the trimmed stderr output
	Stderr string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.Code, e.Stderr)
}

// appendForwarders builds the writer list for one stream: always the capture
// buffer, plus the configured forwarding destination.
func appendForwarders(capture io.Writer, opts Options, stdio io.Writer) []io.Writer {
	writers := []io.Writer{capture}
	if opts.Quiet {
		return writers
	}
	switch opts.OutputDestination {
	case OutputStdio:
		writers = append(writers, stdio)
	case OutputPublish:
		if opts.Publisher != nil {
			writers = append(writers, &eventWriter{publisher: opts.Publisher})
		}
	case OutputIgnore:
	}
	return writers
}

// eventWriter forwards each output chunk as a shell_data event.
type eventWriter struct {
	publisher EventPublisher
}

func (w *eventWriter) Write(p []byte) (int, error) {
	w.publisher(progress.EventShellData, string(p))
	return len(p), nil
}

// renderCommandLine renders the command for log messages, quoting arguments
// that would need escaping in a POSIX shell.
func renderCommandLine(command []string) string {
	parts := make([]string, len(command))
	for i, arg := range command {
		if strings.ContainsAny(arg, " \\!\"'&$") {
			parts[i] = "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}
