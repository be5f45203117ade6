package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/protocol"
)

var characteristicsCmd = &cobra.Command{
	Use:   "characteristics",
	Short: "List the GATT characteristics the client knows, with their access lengths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return env.renderer.Characteristics(env.out, protocol.Characteristics())
	},
}
