package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/session"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the facet history recorded by the cube",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			entries, err := readHistory(ctx, s)
			if err != nil {
				return err
			}
			return env.renderer.History(env.out, entries)
		})
	},
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Erase the history stored on the cube",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			if err := clearHistory(ctx, s); err != nil {
				return err
			}
			return env.renderer.Message(env.out, "Cleared history")
		})
	},
}

func readHistory(ctx context.Context, s *session.DeviceSession) ([]protocol.HistoryEntry, error) {
	reader, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := session.CollectHistory(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// clearHistory uses the delete command on legacy firmware and the dump command,
// which erases after read-out, on current firmware.
func clearHistory(ctx context.Context, s *session.DeviceSession) error {
	gen, err := s.Generation()
	if err != nil {
		return err
	}
	if gen == session.GenerationLegacy {
		return s.HistoryDelete(ctx)
	}
	return s.HistoryDump(ctx)
}
