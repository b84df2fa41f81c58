// Package assistant drives one llamacli invocation: it loads the
// conversation, asks the model for a command, records the exchange, prints
// the answer and optionally runs it behind a confirmation gate.
package assistant

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/llamacli/llamacli/internal/history"
	"github.com/llamacli/llamacli/internal/llm"
	"github.com/llamacli/llamacli/internal/render"
	"github.com/llamacli/llamacli/internal/safety"
	"go.uber.org/zap"
)

// AbortedMessage is printed when the user declines a dangerous command.
const AbortedMessage = "Command execution aborted."

// Runner executes a command line. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, command string) (int, error)
}

// RunnerFactory builds the Runner for an approved command. It is called only
// once the command has passed the confirmation gate, so the runner never
// competes with the gate for stdin.
type RunnerFactory func() (Runner, error)

// Request is a single user query.
type Request struct {
	// Command is the free-text task description.
	Command string

	// File is an optional filename that is mentioned in the prompt. It is
	// never opened.
	File string

	// Execute runs the model's answer after printing it.
	Execute bool

	// Copy places the model's answer on the clipboard.
	Copy bool
}

// Prompt builds the human turn sent to the model and stored in history.
func (r Request) Prompt() string {
	command := strings.TrimSpace(r.Command)
	if r.File != "" {
		return fmt.Sprintf("File: %s\nCommand: %s", r.File, command)
	}
	return fmt.Sprintf("Command: %s", command)
}

// Options configures an Assistant. Store, Client and NewRunner are required.
type Options struct {
	Store     *history.Store
	Client    llm.Client
	NewRunner RunnerFactory

	// Indicator is shown while waiting on the model. Defaults to no indicator.
	Indicator render.Indicator

	// Clipboard writes text to the system clipboard. Only used for Copy
	// requests.
	Clipboard func(text string) error

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *zap.Logger
}

// Assistant runs requests.
type Assistant struct {
	store     *history.Store
	client    llm.Client
	newRunner RunnerFactory
	indicator render.Indicator
	clipboard func(string) error
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	logger    *zap.Logger
}

// New creates an Assistant from opts.
func New(opts Options) (*Assistant, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("assistant: history store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("assistant: model client is required")
	}
	if opts.NewRunner == nil {
		return nil, fmt.Errorf("assistant: command runner is required")
	}

	a := &Assistant{
		store:     opts.Store,
		client:    opts.Client,
		newRunner: opts.NewRunner,
		indicator: opts.Indicator,
		clipboard: opts.Clipboard,
		stdin:     opts.Stdin,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		logger:    opts.Logger,
	}
	if a.indicator == nil {
		a.indicator = render.NopIndicator{}
	}
	if a.stdin == nil {
		a.stdin = strings.NewReader("")
	}
	if a.stdout == nil {
		a.stdout = io.Discard
	}
	if a.stderr == nil {
		a.stderr = io.Discard
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Run handles one request end to end. Errors loading or saving history and
// errors from the model are returned, as is an interrupted confirmation.
// Everything else that happens after the answer is printed is reported to
// the user and not returned.
func (a *Assistant) Run(ctx context.Context, req Request) error {
	conversation, err := a.store.Load()
	if err != nil {
		return err
	}

	prompt := req.Prompt()
	a.logger.Info("sending request",
		zap.Int("historyMessages", conversation.Len()),
		zap.Bool("execute", req.Execute),
		zap.String("file", req.File),
	)

	response, err := a.ask(ctx, prompt, conversation.Messages())
	if err != nil {
		return err
	}

	conversation.Append(history.HumanMessage(prompt), history.AIMessage(response))
	if err := a.store.Save(conversation); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, response)

	if req.Copy {
		a.copyToClipboard(response)
	}

	if !req.Execute {
		return nil
	}
	return a.execute(ctx, response)
}

// ask wraps the model call with the progress indicator. The indicator is
// always stopped, and fully cleaned up, before ask returns.
func (a *Assistant) ask(ctx context.Context, prompt string, messages []history.Message) (string, error) {
	stop := a.indicator.Start(ctx)
	response, err := a.client.Send(ctx, prompt, messages)
	stop()

	if err != nil {
		a.logger.Error("model request failed", zap.Error(err))
		return "", err
	}
	return response, nil
}

func (a *Assistant) execute(ctx context.Context, command string) error {
	if matches := safety.Matches(command); len(matches) > 0 {
		a.logger.Warn("dangerous command suggested", zap.Strings("matches", matches))

		ok, err := safety.Confirm(ctx, a.stdin, a.stdout, matches)
		if ctxErr := ctx.Err(); ctxErr != nil {
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, AbortedMessage)
			a.logger.Info("confirmation interrupted", zap.Error(ctxErr))
			return ctxErr
		}
		if err != nil {
			a.logger.Warn("confirmation failed", zap.Error(err))
		}
		if !ok {
			fmt.Fprintln(a.stdout, AbortedMessage)
			a.logger.Info("execution declined")
			return nil
		}
	}

	runner, err := a.newRunner()
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		a.logger.Error("failed to create command runner", zap.Error(err))
		return nil
	}

	// The exit code is the command's own business; the executor logs it.
	if _, err := runner.Run(ctx, command); err != nil {
		fmt.Fprintln(a.stderr, err)
		a.logger.Warn("command failed to run", zap.Error(err))
	}
	return nil
}

func (a *Assistant) copyToClipboard(text string) {
	if a.clipboard == nil {
		return
	}
	if err := a.clipboard(text); err != nil {
		fmt.Fprintf(a.stderr, "could not copy to clipboard: %v\n", err)
		a.logger.Warn("clipboard write failed", zap.Error(err))
	}
}
