package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/flipcube/internal/report"
	"github.com/srg/flipcube/internal/session"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the cube characteristics, status and history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, env *cliEnv, s *session.DeviceSession) error {
			rep, err := collectCheckReport(ctx, s)
			if err != nil {
				return err
			}
			return env.renderer.Check(env.out, rep)
		})
	},
}

// collectCheckReport reads everything the check command prints. Generation-specific
// readings are only requested from firmware that has them.
func collectCheckReport(ctx context.Context, s *session.DeviceSession) (*report.CheckReport, error) {
	gen, err := s.Generation()
	if err != nil {
		return nil, err
	}

	rep := &report.CheckReport{
		Address:         s.Address(),
		FirmwareVersion: s.FirmwareVersion(),
		Generation:      gen.String(),
	}

	if rep.Name, err = s.DeviceName(ctx); err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	if rep.Firmware, err = s.FirmwareRevision(ctx); err != nil {
		return nil, fmt.Errorf("read firmware: %w", err)
	}
	if rep.Battery, err = s.BatteryLevel(ctx); err != nil {
		return nil, fmt.Errorf("read battery: %w", err)
	}

	switch gen {
	case session.GenerationLegacy:
		calibration, err := s.CalibrationVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("read calibration: %w", err)
		}
		rep.Calibration = &calibration

		vector, err := s.AccelerometerValue(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("read accelerometer: %w", err)
		}
		rep.Accelerometer = &vector
	case session.GenerationCurrent:
		state, err := s.SystemState(ctx)
		if err != nil {
			return nil, fmt.Errorf("read system state: %w", err)
		}
		rep.SystemState = state
	}

	if rep.Facet, err = s.CurrentFacet(ctx, true); err != nil {
		return nil, fmt.Errorf("read facet: %w", err)
	}
	if rep.Status, err = s.Status(ctx); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if rep.History, err = readHistory(ctx, s); err != nil {
		return nil, err
	}
	return rep, nil
}
