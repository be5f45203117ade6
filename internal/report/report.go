package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/scanner"
)

// Formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// CheckReport is everything the check command reads from a cube.
// Calibration and Accelerometer exist only on legacy firmware, SystemState only on current.
type CheckReport struct {
	Address         string                  `json:"address"`
	Name            string                  `json:"name"`
	Firmware        string                  `json:"firmware"`
	FirmwareVersion float64                 `json:"firmware_version"`
	Generation      string                  `json:"generation"`
	Battery         int                     `json:"battery_percent"`
	Calibration     *uint32                 `json:"calibration_version,omitempty"`
	SystemState     HexBytes                `json:"system_state,omitempty"`
	Facet           int                     `json:"facet"`
	Accelerometer   *protocol.Vector        `json:"accelerometer,omitempty"`
	Status          protocol.Status         `json:"status"`
	History         []protocol.HistoryEntry `json:"history"`
}

// HexBytes marshals raw device bytes as a hex string
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// Renderer writes CLI results in one output format
type Renderer interface {
	Check(w io.Writer, r *CheckReport) error
	History(w io.Writer, entries []protocol.HistoryEntry) error
	Discovery(w io.Writer, d *scanner.Discovery) error
	Characteristics(w io.Writer, specs []protocol.CharacteristicSpec) error
	Message(w io.Writer, format string, args ...any) error
}

// NewRenderer returns the renderer for format
func NewRenderer(format string, colored bool) (Renderer, error) {
	switch format {
	case FormatText, "":
		return NewTextRenderer(colored), nil
	case FormatJSON:
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (must be %s or %s)", format, FormatText, FormatJSON)
	}
}
