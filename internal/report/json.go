package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/scanner"
)

// JSONRenderer prints machine-readable documents, one per call
type JSONRenderer struct{}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (JSONRenderer) Check(w io.Writer, r *CheckReport) error {
	if r.History == nil {
		r.History = []protocol.HistoryEntry{}
	}
	return encode(w, r)
}

func (JSONRenderer) History(w io.Writer, entries []protocol.HistoryEntry) error {
	if entries == nil {
		entries = []protocol.HistoryEntry{}
	}
	return encode(w, entries)
}

func (JSONRenderer) Discovery(w io.Writer, d *scanner.Discovery) error {
	out := *d
	for _, g := range []*[]scanner.DiscoveredDevice{&out.Cubes, &out.Others, &out.Unreachable} {
		if *g == nil {
			*g = []scanner.DiscoveredDevice{}
		}
	}
	return encode(w, out)
}

type characteristicJSON struct {
	Name      string `json:"name"`
	UUID      string `json:"uuid"`
	ReadLen   int    `json:"read_len"`
	WriteLen  int    `json:"write_len"`
	NotifyLen int    `json:"notify_len"`
}

func (JSONRenderer) Characteristics(w io.Writer, specs []protocol.CharacteristicSpec) error {
	out := make([]characteristicJSON, 0, len(specs))
	for _, s := range specs {
		out = append(out, characteristicJSON{
			Name:      s.Name,
			UUID:      s.UUID.String(),
			ReadLen:   s.ReadLen,
			WriteLen:  s.WriteLen,
			NotifyLen: s.NotifyLen,
		})
	}
	return encode(w, out)
}

func (JSONRenderer) Message(w io.Writer, format string, args ...any) error {
	return encode(w, map[string]string{"message": fmt.Sprintf(format, args...)})
}
