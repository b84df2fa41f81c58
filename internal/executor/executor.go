// Package executor runs model-suggested command lines with mvdan/sh,
// inheriting the caller's environment and standard streams.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// killTimeout is how long a child gets between SIGINT and SIGKILL when the
// run is cancelled.
const killTimeout = 2 * time.Second

// ExecMiddleware is a function that wraps an ExecHandlerFunc to provide
// additional functionality (e.g., command interception, logging).
type ExecMiddleware = func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc

// Executor runs shell command lines.
type Executor struct {
	runner *interp.Runner
	logger *zap.Logger
}

// New creates an Executor wired to the given streams.
// The logger is optional (can be nil).
// The execHandlers are optional middleware that run before the default
// process handler.
func New(stdin io.Reader, stdout, stderr io.Writer, logger *zap.Logger, execHandlers ...ExecMiddleware) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	handlers := append([]ExecMiddleware{logCommands(logger)}, execHandlers...)
	handlers = append(handlers, processHandler(killTimeout))

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.StdIO(stdin, stdout, stderr),
		interp.ExecHandlers(handlers...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bash runner: %w", err)
	}

	return &Executor{
		runner: runner,
		logger: logger,
	}, nil
}

// Run parses command as a shell program and runs it.
// Returns the exit code and any execution error. A non-zero exit code is
// not an error.
func (e *Executor) Run(ctx context.Context, command string) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return 2, fmt.Errorf("failed to parse bash command: %w", err)
	}

	start := time.Now()
	err = e.runner.Run(ctx, prog)

	exitCode := 0
	if err != nil {
		var exitStatus interp.ExitStatus
		if !errors.As(err, &exitStatus) {
			return 1, err
		}
		exitCode = int(exitStatus)
	}

	e.logger.Info("command finished",
		zap.Int("exitCode", exitCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return exitCode, nil
}

// logCommands records every external command the runner starts.
func logCommands(logger *zap.Logger) ExecMiddleware {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			logger.Debug("exec", zap.Strings("args", args))
			return next(ctx, args)
		}
	}
}

// processHandler terminates the middleware chain with the platform
// specific process handler.
func processHandler(killTimeout time.Duration) ExecMiddleware {
	return func(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return NewProcessGroupExecHandler(killTimeout)
	}
}
