package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Executor runs actions in isolation and reports their outcome. A
// non-nil error means the executor itself is unreachable and is fatal
// for the session; recoverable outcomes (a failing command, a timeout)
// are reported as failure or timeout observations instead.
type Executor interface {
	Execute(ctx context.Context, action eventbus.Action, timeout time.Duration) (eventbus.Observation, error)
}

// sensitiveEnvSuffixes are case-insensitive suffixes for environment
// variables withheld from executed commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalExecutor runs commands on the local machine under a shell, with a
// filtered environment and process-group cleanup on timeout.
type LocalExecutor struct {
	workingDir string
	logger     *slog.Logger
}

// NewLocalExecutor creates an executor rooted at workingDir (the current
// directory when empty). Pass nil logger for the default.
func NewLocalExecutor(workingDir string, logger *slog.Logger) *LocalExecutor {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalExecutor{
		workingDir: workingDir,
		logger:     logger.With("component", "executor"),
	}
}

// Execute dispatches one action. Only run_command and send_message reach
// the executor; the controller resolves the other kinds itself.
func (e *LocalExecutor) Execute(ctx context.Context, action eventbus.Action, timeout time.Duration) (eventbus.Observation, error) {
	switch action.Kind {
	case eventbus.ActionRunCommand:
		return e.runCommand(ctx, action.Command, timeout)
	case eventbus.ActionSendMessage:
		// Delivery to the principal happens through event sinks; the
		// observation records that the message left the agent.
		return eventbus.Observation{Kind: eventbus.ObservationOutput, Output: "message delivered"}, nil
	default:
		return eventbus.Observation{}, fmt.Errorf("action kind %q is not executable", action.Kind)
	}
}

func (e *LocalExecutor) runCommand(ctx context.Context, command string, timeout time.Duration) (eventbus.Observation, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir
	cmd.Env = filterEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("command finished",
		"command", command,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil)

	output := combineOutput(stdout.String(), stderr.String())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			return eventbus.Observation{Kind: eventbus.ObservationTimeout, Output: output, ExitCode: -1}, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			// The command ran and failed: recoverable.
			return eventbus.Observation{
				Kind:     eventbus.ObservationFailure,
				Output:   output,
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		// The command could not be started at all.
		return eventbus.Observation{}, fmt.Errorf("spawning command: %w", err)
	}

	return eventbus.Observation{Kind: eventbus.ObservationOutput, Output: output}, nil
}

func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n" + stderr
	}
}
