package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// Executor runs shell commands with a bounded timeout and reports their
// outcome. One executor serves all commands for an agent.
type Executor struct {
	shell          string
	defaultTimeout time.Duration
	maxOutputBytes int
	logger         *zap.Logger
}

// Options configures command execution.
type Options struct {
	Shell          string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// New creates an executor. An empty shell picks the platform default.
func New(opts Options, logger *zap.Logger) *Executor {
	shell := opts.Shell
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = "powershell"
		} else {
			shell = "/bin/sh"
		}
	}

	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxOutput := opts.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 1 << 20
	}

	return &Executor{
		shell:          shell,
		defaultTimeout: timeout,
		maxOutputBytes: maxOutput,
		logger:         logger,
	}
}

// Execute runs one command envelope and returns its result. The result
// always carries the envelope's IDs so the server can correlate it.
func (e *Executor) Execute(ctx context.Context, env *types.CommandEnvelope) *types.CommandResult {
	timeout := env.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := e.buildCommand(ctx, env.Command)
	// Shell children inherit the output pipes; without a wait delay a
	// forked child that outlives the killed shell keeps Run blocked past
	// the deadline.
	cmd.WaitDelay = 2 * time.Second
	setKillGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &types.CommandResult{
		CommandID: env.CommandID,
		AgentID:   env.AgentID,
		Output:    e.truncate(stdout.String()),
		Duration:  duration,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Error = "command timed out"
		result.ExitCode = -1
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = e.truncate(errorText(err, stderr.String()))
	default:
		result.Success = true
		result.ExitCode = 0
		if stderr.Len() > 0 {
			result.Error = e.truncate(stderr.String())
		}
	}

	e.logger.Debug("Command executed",
		zap.String("command_id", env.CommandID),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", duration))
	return result
}

func (e *Executor) buildCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		if strings.Contains(strings.ToLower(e.shell), "powershell") {
			return exec.CommandContext(ctx, e.shell, "-NoProfile", "-NonInteractive", "-Command", command)
		}
		return exec.CommandContext(ctx, e.shell, "/C", command)
	}
	return exec.CommandContext(ctx, e.shell, "-c", command)
}

func (e *Executor) truncate(s string) string {
	if len(s) <= e.maxOutputBytes {
		return s
	}
	return s[:e.maxOutputBytes]
}

// errorText prefers stderr over the process error, which is usually just
// an exit status.
func errorText(err error, stderr string) string {
	if strings.TrimSpace(stderr) != "" {
		return stderr
	}
	return err.Error()
}
