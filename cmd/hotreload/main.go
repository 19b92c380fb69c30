package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"hotreload/internal/app"
	"hotreload/internal/config"
	"hotreload/pkg/interfaces"
)

const (
	// ExitCodeOk is used when the command finishes without error.
	ExitCodeOk = 0
	// ExitCodeInvalidFlags is used when invalid flags are passed.
	ExitCodeInvalidFlags = 1
	// ExitCodeInvalidConfig is used when configuration cannot be loaded or validated.
	ExitCodeInvalidConfig = 2
	// ExitCodeOther is used in all other situations.
	ExitCodeOther = 127
)

// Options are shared by every command.
type Options struct {
	Config  string `short:"c" long:"config" env:"HOTRELOAD_CONFIG_FILE" description:"YAML or JSON config file"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

// cli carries global state into command Execute methods.
type cli struct {
	ctx    context.Context
	opts   Options
	stdout io.Writer
	stderr io.Writer
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func (c *cli) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}

// load applies precedence (defaults < env < file), then overrides, then validates.
func (c *cli) load(overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(c.opts.Config)
	if err != nil {
		return nil, &configError{err}
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

type serveCommand struct {
	cli *cli

	Host string `long:"host" description:"interface to bind"`
	Port *int   `short:"p" long:"port" description:"port to serve on"`
	Args struct {
		Root string `positional-arg-name:"dir"`
	} `positional-args:"yes"`
}

func (s *serveCommand) Execute(_ []string) error {
	cfg, err := s.cli.load(func(cfg *config.Config) {
		if s.Host != "" {
			cfg.HTTP.Host = s.Host
		}
		if s.Port != nil {
			cfg.HTTP.Port = *s.Port
		}
		if s.Args.Root != "" {
			cfg.HTTP.Root = s.Args.Root
		}
	})
	if err != nil {
		return err
	}

	srv, err := app.NewDevServer(cfg, s.cli.logger())
	if err != nil {
		return err
	}
	return srv.Run(s.cli.ctx)
}

type followCommand struct {
	cli *cli

	Output    string         `short:"o" long:"output" description:"write the live document to this file"`
	Reconnect *time.Duration `long:"reconnect" description:"delay between reconnect attempts"`
	NoCancel  bool           `long:"no-cancel" description:"let superseded page fetches finish"`
	Replace   bool           `long:"replace" description:"replace the whole document on page reloads"`
	Args      struct {
		URL string `positional-arg-name:"url" required:"yes"`
	} `positional-args:"yes"`
}

func (f *followCommand) Execute(_ []string) error {
	target, err := url.Parse(f.Args.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return &flags.Error{Type: flags.ErrInvalidChoice, Message: fmt.Sprintf("not an http(s) URL: %q", f.Args.URL)}
	}

	cfg, err := f.cli.load(func(cfg *config.Config) {
		if f.Output != "" {
			cfg.Client.Output = f.Output
		}
		if f.Reconnect != nil {
			cfg.Client.ReconnectDelay = *f.Reconnect
		}
		if f.NoCancel {
			cfg.Client.CancelInFlight = false
		}
		if f.Replace {
			cfg.Client.Replace = true
		}
	})
	if err != nil {
		return err
	}

	logger := f.cli.logger()
	var store interfaces.PreferenceStore
	if manager, err := app.OpenStore(cfg, logger); err != nil {
		logger.Debug("preferences unavailable", "err", err)
	} else {
		defer manager.Close()
		store = manager
	}

	follower, err := app.NewFollower(f.cli.ctx, cfg, target.String(), store, logger)
	if err != nil {
		return err
	}
	return follower.Run(f.cli.ctx)
}

type debugCommand struct {
	cli *cli

	Args struct {
		State string `positional-arg-name:"on|off|reset|status" required:"yes"`
	} `positional-args:"yes"`
}

func (d *debugCommand) Execute(_ []string) error {
	cfg, err := d.cli.load(nil)
	if err != nil {
		return err
	}
	logger := d.cli.logger()

	switch d.Args.State {
	case "on", "off":
		if err := app.SetDebug(d.cli.ctx, cfg, d.Args.State == "on", logger); err != nil {
			return err
		}
	case "reset":
		if err := app.ResetDebug(d.cli.ctx, cfg, logger); err != nil {
			return err
		}
	case "status":
	default:
		return &flags.Error{Type: flags.ErrInvalidChoice, Message: fmt.Sprintf("expected on, off, reset or status, got %q", d.Args.State)}
	}

	enabled, err := app.DebugStatus(d.cli.ctx, cfg, logger)
	if err != nil {
		return err
	}
	state := "off"
	if enabled {
		state = "on"
	}
	fmt.Fprintf(d.cli.stdout, "debug %s\n", state)
	return nil
}

func newParser(c *cli) *flags.Parser {
	parser := flags.NewParser(&c.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "hotreload"
	parser.Usage = "[OPTIONS] <serve | follow | debug>"

	parser.AddCommand("serve", "Serve a directory with live reload",
		"Serve dir over HTTP, watch it and notify connected pages on every change.",
		&serveCommand{cli: c})
	parser.AddCommand("follow", "Follow a served page",
		"Load url, apply reload notifications to it and optionally mirror it to a file.",
		&followCommand{cli: c})
	parser.AddCommand("debug", "Toggle client diagnostics",
		"Persist the developer flag that enables client diagnostics.",
		&debugCommand{cli: c})
	return parser
}

// run parses args, executes the selected command and maps the outcome to an
// exit code.
// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{ctx: ctx, stdout: stdout, stderr: stderr}
	parser := newParser(c)

	_, err := parser.ParseArgs(args)
	if err == nil || errors.Is(err, context.Canceled) {
		return ExitCodeOk
	}

	var flagsErr *flags.Error
	var cfgErr *configError
	switch {
	case errors.As(err, &flagsErr):
		if flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return ExitCodeOk
		}
		fmt.Fprintln(stderr, flagsErr.Message)
		return ExitCodeInvalidFlags
	case errors.As(err, &cfgErr):
		fmt.Fprintf(stderr, "invalid config: %v\n", cfgErr)
		return ExitCodeInvalidConfig
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitCodeOther
	}
}

// FUNCTIONAL DISCOVERY: Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
