package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"github.com/llamacli/llamacli/internal/assistant"
	"github.com/llamacli/llamacli/internal/config"
	"github.com/llamacli/llamacli/internal/core"
	"github.com/llamacli/llamacli/internal/executor"
	"github.com/llamacli/llamacli/internal/history"
	"github.com/llamacli/llamacli/internal/llm"
	"github.com/llamacli/llamacli/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var BUILD_VERSION = "dev"

const longHelp = `llamacli - ask a local language model for shell commands

llamacli sends a task description to an Ollama server, prints the command it
suggests and, with --execute, runs it. Earlier questions and answers are kept
in ollama_chat_history.json so follow-up questions have context.

Commands containing "rm", "rmdir" or "sudo rm" ask for confirmation before
they are executed.

CONFIGURATION:
  ~/.llamacli/config.yaml   base_url, model, api_key, timeout, history_file,
                            log_level, log_file
  LLAMACLI_BASE_URL, LLAMACLI_MODEL, LLAMACLI_API_KEY, LLAMACLI_TIMEOUT,
  LLAMACLI_HISTORY_FILE, LLAMACLI_LOG_LEVEL, LLAMACLI_LOG_FILE override the
  file; flags override both.`

// options holds the parsed command-line flags.
type options struct {
	execute      bool
	file         string
	copy         bool
	resetHistory bool
	configFile   string
	model        string
	historyFile  string
	timeout      time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "llamacli [flags] <command>",
		Short:         "Ask a local language model for shell commands",
		Long:          longHelp,
		Args:          cobra.ExactArgs(1),
		Version:       BUILD_VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts, stdin, stdout, stderr)
		},
	}

	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := cmd.Flags()
	flags.BoolVarP(&opts.execute, "execute", "e", false, "execute the suggested command")
	flags.StringVarP(&opts.file, "file", "f", "", "filename to mention in the prompt (the file is not read)")
	flags.BoolVarP(&opts.copy, "copy", "c", false, "copy the suggested command to the clipboard")
	flags.BoolVar(&opts.resetHistory, "reset-history", false, "clear the conversation history before asking")
	flags.StringVar(&opts.configFile, "config", core.ConfigFile(), "path to the config file")
	flags.StringVarP(&opts.model, "model", "m", "", "model to ask (overrides config)")
	flags.StringVar(&opts.historyFile, "history-file", "", "conversation history file (overrides config)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "give up on the model after this long, 0 waits forever (overrides config)")

	return cmd
}

func run(cmd *cobra.Command, command string, opts options, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() // Flush any buffered log entries

	logger.Info("-------- new llamacli session --------",
		zap.Any("args", os.Args),
		zap.String("model", cfg.Model),
		zap.String("baseURL", cfg.BaseURL),
	)

	store := history.NewStore(cfg.HistoryFile, logger)
	if opts.resetHistory {
		if err := store.Reset(); err != nil {
			return err
		}
	}

	client, err := llm.NewOllamaClient(llm.Options{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	a, err := assistant.New(assistant.Options{
		Store:  store,
		Client: client,
		// The shell copies a non-file stdin as soon as it is built, so it is
		// only created once the command has been approved.
		NewRunner: func() (assistant.Runner, error) {
			return executor.New(stdin, stdout, stderr, logger)
		},
		Indicator: newIndicator(stdout),
		Clipboard: clipboard.WriteAll,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	err = a.Run(cmd.Context(), assistant.Request{
		Command: command,
		File:    opts.file,
		Execute: opts.execute,
		Copy:    opts.copy,
	})
	if err != nil {
		logger.Error("unhandled error", zap.Error(err))
	}
	return err
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg, err := config.NewLoader(nil).Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("history-file") {
		cfg.HistoryFile = opts.historyFile
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	logLevel, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}
	if BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	if cfg.LogFile == core.LogFile() {
		err = core.EnsureDataDir()
	} else {
		err = os.MkdirAll(filepath.Dir(cfg.LogFile), 0755)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Logs only go to file so they never mix with the suggested command
	// Use `tail -f ~/.llamacli/llamacli.log` to monitor logs in real-time
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{cfg.LogFile}
	loggerConfig.ErrorOutputPaths = []string{cfg.LogFile}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// printError reports a fatal error on w. Only the label is styled, and the
// color decision is made for w itself.
func printError(w io.Writer, err error) {
	label := render.ErrorStyleFor(w).Render("Error:")
	fmt.Fprintf(w, "%s %v\n", label, err)
}

// newIndicator returns a spinner when w is a terminal, and a silent
// indicator otherwise so redirected output stays clean.
func newIndicator(w io.Writer) render.Indicator {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return render.NewSpinner(w)
	}
	return render.NopIndicator{}
}
