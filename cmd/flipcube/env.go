package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/report"
	"github.com/srg/flipcube/internal/session"
	"github.com/srg/flipcube/pkg/config"
	"github.com/srg/flipcube/pkg/connection"
)

// cliEnv is the per-invocation state shared by the commands
type cliEnv struct {
	cfg      *config.Config
	logger   *logrus.Logger
	renderer report.Renderer
	out      io.Writer
}

// transportFactory builds the BLE transport for a session (can be overridden in tests)
var transportFactory = func(cfg *config.Config, logger *logrus.Logger) session.Transport {
	return connection.NewConnection(&connection.ConnectOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		Dial:           connection.DialDefault,
	}, logger)
}

// newEnv loads the config file, applies flag overrides and builds the logger and renderer
func newEnv(cmd *cobra.Command) (*cliEnv, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("address") {
		cfg.Address, _ = flags.GetString("address")
	}
	if flags.Changed("password") {
		cfg.Password, _ = flags.GetString("password")
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if flags.Changed("output") {
		cfg.OutputFormat, _ = flags.GetString("output")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg, path != "")
	if err != nil {
		return nil, err
	}

	noColor, _ := flags.GetBool("no-color")
	out := cmd.OutOrStdout()
	renderer, err := report.NewRenderer(cfg.OutputFormat, !noColor && isTerminal(out))
	if err != nil {
		return nil, err
	}

	return &cliEnv{cfg: cfg, logger: logger, renderer: renderer, out: out}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// sessionFunc runs against a connected, set-up session
type sessionFunc func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error

// withSession connects to the configured cube, runs setup, calls fn and always
// disconnects afterwards.
func withSession(cmd *cobra.Command, fn sessionFunc) error {
	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	if env.cfg.Address == "" {
		return ErrNoAddress
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	address := env.cfg.Address
	s := session.New(address, transportFactory(env.cfg, env.logger), env.logger)

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Cube "+address, "Connecting")
	progress.Start()
	defer progress.Stop()

	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer s.Disconnect(context.WithoutCancel(ctx))

	progress.Callback()("Logging in")
	if err := s.Setup(ctx, env.cfg.Password, nil); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	progress.Stop()

	return fn(ctx, env, s)
}
