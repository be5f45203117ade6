package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/session"
	"golang.org/x/term"
)

var setNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Rename the cube",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			previous, err := s.DeviceName(ctx)
			if err != nil {
				return err
			}
			ok, err := s.SetName(ctx, name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("rename to %q: %w", name, ErrCommandFailed)
			}
			current, err := s.DeviceName(ctx)
			if err != nil {
				return err
			}
			return env.renderer.Message(env.out, "Changed device name from %q to %q", previous, current)
		})
	},
}

var setPasswordCmd = &cobra.Command{
	Use:   "set-password [new-password]",
	Short: "Change the cube password (prompted when not given)",
	Long: `Change the 6-character password the cube expects at login. The current password
is taken from --password or the config file. When new-password is omitted it is
read from the terminal without echo.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			var err error
			if password, err = promptPassword(cmd); err != nil {
				return err
			}
		}
		if err := protocol.ValidatePassword(password); err != nil {
			return err
		}

		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			ok, err := s.SetPassword(ctx, password)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("change password: %w", ErrCommandFailed)
			}
			return env.renderer.Message(env.out, "Changed password")
		})
	},
}

// promptPassword reads the new password twice from the terminal
func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("new password must be given as an argument when stdin is not a terminal")
	}

	read := func(prompt string) (string, error) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		return strings.TrimSpace(string(b)), err
	}

	first, err := read("New password: ")
	if err != nil {
		return "", err
	}
	second, err := read("Repeat new password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

var lockCmd = &cobra.Command{
	Use:       "lock on|off",
	Short:     "Lock or unlock the cube; a locked cube ignores flips",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			if err := s.Lock(ctx, state, force); err != nil {
				return err
			}
			if state {
				return env.renderer.Message(env.out, "Cube locked")
			}
			return env.renderer.Message(env.out, "Cube unlocked")
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:       "pause on|off",
	Short:     "Pause or resume time tracking",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		force, _ := flags.GetBool("force")
		autoPause, _ := flags.GetInt("auto-pause")

		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			if err := s.Pause(ctx, state, force); err != nil {
				return err
			}
			if flags.Changed("auto-pause") {
				if err := s.SetAutoPause(ctx, autoPause); err != nil {
					return err
				}
			}
			if state {
				return env.renderer.Message(env.out, "Tracking paused")
			}
			return env.renderer.Message(env.out, "Tracking resumed")
		})
	},
}

func parseOnOff(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state %q (must be on or off)", arg)
	}
}

func init() {
	lockCmd.Flags().Bool("force", false, "Send the command even if the cube already reports the state")
	pauseCmd.Flags().Bool("force", false, "Send the command even if the cube already reports the state")
	pauseCmd.Flags().Int("auto-pause", 0, "Also set the auto-pause delay in minutes (0 disables)")
}
