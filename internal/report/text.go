package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/internal/scanner"
)

// TextRenderer prints human-readable summaries
type TextRenderer struct {
	heading *color.Color
	label   *color.Color
	good    *color.Color
	warn    *color.Color
}

// NewTextRenderer creates a TextRenderer; colored=false strips all escapes
func NewTextRenderer(colored bool) *TextRenderer {
	r := &TextRenderer{
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{r.heading, r.label, r.good, r.warn} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *TextRenderer) line(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "- %s %v\n", r.label.Sprint(label+":"), value)
}

// Check renders the cube characteristics followed by its history
func (r *TextRenderer) Check(w io.Writer, rep *CheckReport) error {
	fmt.Fprintln(w, r.heading.Sprint("Cube characteristics::"))
	r.line(w, "Name", rep.Name)
	r.line(w, "Firmware", fmt.Sprintf("%s (%s)", rep.Firmware, rep.Generation))
	r.line(w, "Battery", r.battery(rep.Battery))
	if rep.Calibration != nil {
		r.line(w, "Calibration", *rep.Calibration)
	}
	if rep.SystemState != nil {
		r.line(w, "System state", rep.SystemState)
	}
	r.line(w, "Current facet", rep.Facet)
	if v := rep.Accelerometer; v != nil {
		r.line(w, "Accelerometer vector", fmt.Sprintf("%.3f, %.3f, %.3f", v.X, v.Y, v.Z))
	}
	r.line(w, "Status", r.status(rep.Status))

	return r.History(w, rep.History)
}

func (r *TextRenderer) battery(percent int) string {
	s := fmt.Sprintf("%d%%", percent)
	if percent < 20 {
		return r.warn.Sprint(s)
	}
	return r.good.Sprint(s)
}

func (r *TextRenderer) status(st protocol.Status) string {
	if st.Locked {
		return r.warn.Sprint("locked")
	}
	state := "running"
	if st.Paused {
		state = "paused"
	}
	if st.AutoPauseMinutes == 0 {
		return state + ", auto-pause off"
	}
	return fmt.Sprintf("%s, auto-pause after %d min", state, st.AutoPauseMinutes)
}

// History renders one line per entry. Aligned entries carry their event number;
// legacy entries are positional and print without one.
func (r *TextRenderer) History(w io.Writer, entries []protocol.HistoryEntry) error {
	fmt.Fprintln(w, r.heading.Sprint("History::"))
	if len(entries) == 0 {
		fmt.Fprintln(w, "- (empty)")
		return nil
	}
	for _, e := range entries {
		if e.Original == nil {
			fmt.Fprintf(w, "- #%d Facet=%d, during %d seconds\n", e.EventNumber, e.Facet, e.Duration)
			continue
		}
		fmt.Fprintf(w, "- Facet=%d, during %d seconds\n", e.Facet, e.Duration)
	}
	return nil
}

// Discovery renders the three probe groups
func (r *TextRenderer) Discovery(w io.Writer, d *scanner.Discovery) error {
	fmt.Fprintln(w, r.heading.Sprint("Results::"))
	r.line(w, "Cubes", joinDevices(d.Cubes, true))
	r.line(w, "Other BLE devices", joinDevices(d.Others, true))
	r.line(w, "Other devices", joinDevices(d.Unreachable, false))
	return nil
}

func joinDevices(devs []scanner.DiscoveredDevice, withName bool) string {
	parts := make([]string, 0, len(devs))
	for _, d := range devs {
		if withName {
			parts = append(parts, fmt.Sprintf("%s (%s)", d.Address, d.Name))
		} else {
			parts = append(parts, d.Address)
		}
	}
	return strings.Join(parts, ", ")
}

// Characteristics renders the registry as a table
func (r *TextRenderer) Characteristics(w io.Writer, specs []protocol.CharacteristicSpec) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUUID\tREAD\tWRITE\tNOTIFY")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.UUID, length(s.ReadLen), length(s.WriteLen), length(s.NotifyLen))
	}
	return tw.Flush()
}

func length(n int) string {
	if n == protocol.Unsupported {
		return "-"
	}
	return fmt.Sprint(n)
}

// Message prints a one-line confirmation such as "! Cleared history"
func (r *TextRenderer) Message(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, "! "+format+"\n", args...)
	return err
}
