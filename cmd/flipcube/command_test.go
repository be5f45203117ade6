package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/scanner"
	"github.com/srg/flipcube/internal/session"
	"github.com/srg/flipcube/internal/testutils"
	"github.com/srg/flipcube/pkg/config"
	"github.com/srg/flipcube/pkg/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const testCubeAddress = "00:00:00:00:00:01"

// CommandTestSuite runs the CLI commands against an in-memory cube
type CommandTestSuite struct {
	suite.Suite

	cube              *testutils.FakeCube
	originalTransport func(*config.Config, *logrus.Logger) session.Transport
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalTransport = transportFactory
}

func (s *CommandTestSuite) TearDownSuite() {
	transportFactory = s.originalTransport
}

func (s *CommandTestSuite) SetupTest() {
	s.useCube(testutils.NewFakeCube())
}

func (s *CommandTestSuite) TearDownTest() {
	resetFlags(rootCmd)
}

func (s *CommandTestSuite) useCube(cube *testutils.FakeCube) {
	s.cube = cube
	transportFactory = func(*config.Config, *logrus.Logger) session.Transport { return cube }
}

// resetFlags restores every flag to its default; cobra keeps flag state between Execute calls
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeRaw runs the root command with args exactly as given
func (s *CommandTestSuite) executeRaw(args ...string) (string, error) {
	resetFlags(rootCmd)
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// execute runs a command against the test cube
func (s *CommandTestSuite) execute(args ...string) (string, error) {
	return s.executeRaw(append(args, "--address", testCubeAddress, "--no-color")...)
}

func (s *CommandTestSuite) opcodeCount(op protocol.Opcode) int {
	n := 0
	for _, f := range s.cube.Frames() {
		if f.Opcode() == op {
			n++
		}
	}
	return n
}

func (s *CommandTestSuite) TestCheck_CurrentFirmware() {
	// GOAL: Verify check prints the current-firmware readings and the aligned history
	//
	// TEST SCENARIO: FW_v3.50 cube with two history entries → text report with system state and numbered entries

	s.cube.History = []protocol.HistoryEntry{
		{EventNumber: 1, Facet: 3, Timestamp: 1700000000, Duration: 10},
		{EventNumber: 2, Facet: 5, Timestamp: 1700000010, Duration: 3600},
	}

	out, err := s.execute("check")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
Cube characteristics::
- Name: TimeFlip v2.0
- Firmware: FW_v3.50 (current)
- Battery: 87%
- System state: 00000001
- Current facet: 0
- Status: running, auto-pause off
History::
- #1 Facet=3, during 10 seconds
- #2 Facet=5, during 3600 seconds
`)
	s.False(s.cube.Connected(), "check MUST disconnect when done")
}

func (s *CommandTestSuite) TestCheck_LegacyFirmwareJSON() {
	// GOAL: Verify check on legacy firmware reads calibration and accelerometer and decodes packed history
	//
	// TEST SCENARIO: FW_v3.20 cube with two packed records → JSON report with legacy-only fields and truncated history

	cube := testutils.NewLegacyFakeCube()
	cube.Calibration = 5
	// the count overlaps the first record, so its duration reads as 2<<8
	cube.LegacyBlocks = testutils.LegacyBlocks(2, testutils.LegacyRecord(3, 0), testutils.LegacyRecord(1, 256))
	s.useCube(cube)

	out, err := s.execute("check", "--output", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"address": "00:00:00:00:00:01",
		"name": "TimeFlip v2.0",
		"firmware": "FW_v3.20",
		"generation": "legacy",
		"battery_percent": 87,
		"calibration_version": 5,
		"facet": 0,
		"accelerometer": {"X": 0, "Y": 0, "Z": 1},
		"status": {"locked": false, "paused": false, "auto_pause_minutes": 0},
		"history": [
			{"event_number": 0, "facet": 3, "duration_seconds": 512},
			{"event_number": 1, "facet": 1, "duration_seconds": 256}
		]
	}`)
	s.NotContains(out, "system_state", "legacy report MUST NOT contain the current-only system state")
}

func (s *CommandTestSuite) TestCheck_WrongPassword() {
	// GOAL: Verify a wrong password surfaces as an unreadable response with a password hint
	//
	// TEST SCENARIO: cube password differs → setup status read is short → error hints at the password

	s.cube.Password = "654321"

	_, err := s.execute("check")

	s.Require().Error(err)
	s.ErrorIs(err, protocol.ErrShortResponse)
	s.Contains(FormatUserError(err), "password is probably wrong")
	s.False(s.cube.Connected(), "failed setup MUST still disconnect")
}

func (s *CommandTestSuite) TestHistory() {
	s.cube.History = []protocol.HistoryEntry{{EventNumber: 9, Facet: 2, Timestamp: 1, Duration: 42}}

	out, err := s.execute("history", "-o", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[{"event_number": 9, "facet": 2, "timestamp": 1, "duration_seconds": 42}]`)
}

func (s *CommandTestSuite) TestClearHistory() {
	s.Run("current firmware dumps the history", func() {
		s.cube.History = []protocol.HistoryEntry{{EventNumber: 1, Facet: 1, Duration: 1}}

		out, err := s.execute("clear-history")

		s.Require().NoError(err)
		s.Equal("! Cleared history\n", out)
		s.Equal(1, s.opcodeCount(protocol.OpHistoryDump), "clear-history MUST send exactly one dump command")
		s.Empty(s.cube.History)
	})

	s.Run("legacy firmware deletes the history", func() {
		s.useCube(testutils.NewLegacyFakeCube())
		s.cube.LegacyBlocks = testutils.LegacyBlocks(1, testutils.LegacyRecord(1, 0))

		_, err := s.execute("clear-history")

		s.Require().NoError(err)
		s.Equal(1, s.opcodeCount(protocol.OpHistoryDump))
		s.Empty(s.cube.LegacyBlocks)
	})
}

func (s *CommandTestSuite) TestSetName() {
	s.Run("renames the cube", func() {
		out, err := s.execute("set-name", "Desk cube")

		s.Require().NoError(err)
		s.Equal("! Changed device name from \"TimeFlip v2.0\" to \"Desk cube\"\n", out)
		s.Equal("Desk cube", s.cube.Name)
	})

	s.Run("too long name is rejected before any command", func() {
		s.cube.ResetCounters()

		_, err := s.execute("set-name", "a name that is too long")

		s.ErrorIs(err, protocol.ErrValueTooLong)
		s.Zero(s.opcodeCount(protocol.OpSetName), "invalid name MUST NOT reach the device")
		s.Contains(FormatUserError(err), "invalid value")
	})

	s.Run("rejected rename reports failure", func() {
		s.cube.Rejected = map[protocol.Opcode]bool{protocol.OpSetName: true}

		_, err := s.execute("set-name", "Other")

		s.ErrorIs(err, ErrCommandFailed)
		s.Equal("Desk cube", s.cube.Name, "rejected rename MUST NOT change the name")
	})
}

func (s *CommandTestSuite) TestSetPassword() {
	s.Run("changes the password", func() {
		out, err := s.execute("set-password", "123456")

		s.Require().NoError(err)
		s.Equal("! Changed password\n", out)
		s.Equal("123456", s.cube.Password)
	})

	s.Run("next login uses the configured password", func() {
		_, err := s.execute("check", "--password", "123456")
		s.NoError(err, "login with the new password MUST succeed")
	})

	s.Run("wrong length is rejected without connecting", func() {
		s.useCube(testutils.NewFakeCube())

		_, err := s.execute("set-password", "123")

		s.ErrorIs(err, protocol.ErrInvalidLength)
		s.Zero(s.cube.TotalWrites(), "invalid password MUST NOT reach the device")
	})
}

func (s *CommandTestSuite) TestLock() {
	out, err := s.execute("lock", "on")
	s.Require().NoError(err)
	s.Equal("! Cube locked\n", out)
	s.True(s.cube.Locked)

	out, err = s.execute("lock", "off")
	s.Require().NoError(err)
	s.Equal("! Cube unlocked\n", out)
	s.False(s.cube.Locked)

	_, err = s.execute("lock", "maybe")
	s.Error(err)
}

func (s *CommandTestSuite) TestPause() {
	s.Run("pauses and sets auto-pause", func() {
		out, err := s.execute("pause", "on", "--auto-pause", "5")

		s.Require().NoError(err)
		s.Equal("! Tracking paused\n", out)
		s.True(s.cube.Paused)
		s.Equal(uint16(5), s.cube.AutoPause)
	})

	s.Run("already paused cube gets no command unless forced", func() {
		s.cube.ResetCounters()
		_, err := s.execute("pause", "on")
		s.Require().NoError(err)
		s.Zero(s.opcodeCount(protocol.OpPause), "unforced pause to the cached state MUST NOT write")

		s.cube.ResetCounters()
		_, err = s.execute("pause", "on", "--force")
		s.Require().NoError(err)
		s.Equal(1, s.opcodeCount(protocol.OpPause), "forced pause MUST write once")
	})
}

func (s *CommandTestSuite) TestCharacteristics() {
	out, err := s.executeRaw("characteristics", "--output", "json")

	s.Require().NoError(err)
	s.Contains(out, `"name": "battery_level"`)
	s.Contains(out, `"name": "history_data"`)
	s.False(s.cube.Connected(), "characteristics MUST NOT need a device")
}

func (s *CommandTestSuite) TestMissingAddress() {
	_, err := s.executeRaw("check")
	s.ErrorIs(err, ErrNoAddress)
}

func (s *CommandTestSuite) TestConfigFile() {
	// GOAL: Verify the config file supplies the address and password, and flags still win
	//
	// TEST SCENARIO: config with address and password → check connects with them → --output flag overrides config output

	s.cube.Password = "111111"
	path := filepath.Join(s.T().TempDir(), "flipcube.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("address: \""+testCubeAddress+"\"\npassword: \"111111\"\noutput: text\nlog_level: error\n"), 0o600))

	out, err := s.executeRaw("history", "--config", path, "--output", "json")

	s.Require().NoError(err)
	s.Equal("[]\n", out, "--output MUST override the config output format")
}

// advert is a minimal ble.Advertisement for discovery tests
type advert struct {
	ble.Advertisement
	addr, name string
}

func (a advert) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a advert) LocalName() string { return a.name }
func (a advert) RSSI() int         { return -60 }
func (a advert) Connectable() bool { return true }

// replayRadio delivers its adverts once and returns
type replayRadio []ble.Advertisement

func (r replayRadio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	for _, a := range r {
		h(a)
	}
	return nil
}

func (s *CommandTestSuite) TestDiscover() {
	// GOAL: Verify discover scans, probes every device and groups the results
	//
	// TEST SCENARIO: three adverts, one blocked → prober marks one cube and one unreachable → JSON groups match

	originalRadio, originalProber := scanner.RadioFactory, proberFactory
	defer func() { scanner.RadioFactory, proberFactory = originalRadio, originalProber }()

	scanner.RadioFactory = func() (scanner.Radio, error) {
		return replayRadio{
			advert{addr: "aa:aa:aa:aa:aa:01", name: "TimeFlip"},
			advert{addr: "aa:aa:aa:aa:aa:02", name: "Headset"},
			advert{addr: "aa:aa:aa:aa:aa:03", name: "Printer"},
		}, nil
	}
	var probed []string
	proberFactory = func(timeout time.Duration, logger *logrus.Logger) scanner.Prober {
		s.LessOrEqual(timeout, 10*time.Second, "probe timeout MUST be capped")
		return func(ctx context.Context, address string) scanner.Class {
			probed = append(probed, address)
			if address == "aa:aa:aa:aa:aa:01" {
				return scanner.ClassCube
			}
			return scanner.ClassUnreachable
		}
	}

	out, err := s.executeRaw("discover", "--scan-timeout", "10ms", "--block", "aa:aa:aa:aa:aa:03", "-o", "json")

	s.Require().NoError(err)
	s.Equal([]string{"aa:aa:aa:aa:aa:01", "aa:aa:aa:aa:aa:02"}, probed, "blocked devices MUST NOT be probed")
	testutils.NewJSONAsserter(s.T(), testutils.WithIgnoredFields("rssi", "connectable", "last_seen")).Assert(out, `{
		"cubes": [{"address": "aa:aa:aa:aa:aa:01", "name": "TimeFlip"}],
		"others": [],
		"unreachable": [{"address": "aa:aa:aa:aa:aa:02", "name": "Headset"}]
	}`)
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect string
	}{
		{"bluetooth off", connection.ErrBluetoothOff, "Bluetooth is turned off"},
		{"version", &session.VersionError{Operation: "GetTime", Generation: session.GenerationLegacy, Err: session.ErrUnimplementedOperation}, "GetTime is not available on legacy firmware"},
		{"command", &protocol.CommandError{Frame: []byte{0x04, 0x01}}, "rejected the command"},
		{"range", &protocol.RangeError{Field: "brightness", Value: 101, Min: 0, Max: 100}, "invalid value"},
		{"lost", connection.ErrNotConnected, "connection to the cube was lost"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.expect)
		})
	}
}

func TestParseOnOff(t *testing.T) {
	for _, arg := range []string{"on", "ON", "true", "1"} {
		v, err := parseOnOff(arg)
		assert.NoError(t, err)
		assert.True(t, v, arg)
	}
	for _, arg := range []string{"off", "false", "0"} {
		v, err := parseOnOff(arg)
		assert.NoError(t, err)
		assert.False(t, v, arg)
	}
	_, err := parseOnOff("toggle")
	assert.Error(t, err)
}
