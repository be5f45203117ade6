package main

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print facet changes (and raw events on current firmware) until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			out := env.renderer
			if err := s.RegisterFacetNotification(ctx, func(facet int) {
				_ = out.Message(env.out, "Facet %d", facet)
			}); err != nil {
				return err
			}

			if gen, _ := s.Generation(); gen == session.GenerationCurrent {
				if err := s.RegisterEventNotification(ctx, func(block []byte) {
					_ = out.Message(env.out, "Event %s", hex.EncodeToString(block))
				}); err != nil {
					return err
				}
			}

			_ = out.Message(env.out, "Watching cube on facet %d, press Ctrl+C to stop", s.CachedFacet())
			<-ctx.Done()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		})
	},
}
