package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/protocol"
	"github.com/srg/flipcube/pkg/connection"
)

// Class is the outcome of probing one discovered device
type Class string

const (
	ClassCube        Class = "cube"
	ClassOther       Class = "other"
	ClassUnreachable Class = "unreachable"
)

// Prober connects to address and decides what kind of device it is
type Prober func(ctx context.Context, address string) Class

// Discovery groups scanned devices by probe outcome
type Discovery struct {
	Cubes       []DiscoveredDevice `json:"cubes"`
	Others      []DiscoveredDevice `json:"others"`
	Unreachable []DiscoveredDevice `json:"unreachable"`
}

// Total returns the number of classified devices
func (d *Discovery) Total() int {
	return len(d.Cubes) + len(d.Others) + len(d.Unreachable)
}

// Classify probes every device in turn. Probes run sequentially since they share
// one radio.
func Classify(ctx context.Context, devices []DiscoveredDevice, probe Prober, progress ProgressCallback) (*Discovery, error) {
	if progress == nil {
		progress = func(string) {}
	}

	out := &Discovery{}
	for _, dev := range devices {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		progress("Probing " + dev.Address)

		switch probe(ctx, dev.Address) {
		case ClassCube:
			out.Cubes = append(out.Cubes, dev)
		case ClassOther:
			out.Others = append(out.Others, dev)
		default:
			out.Unreachable = append(out.Unreachable, dev)
		}
	}
	return out, nil
}

// NewConnectionProber returns a Prober that dials each device and reads the facet
// characteristic: a readable facet marks a cube, a connection that cannot read it
// marks some other peripheral.
func NewConnectionProber(timeout time.Duration, logger *logrus.Logger) Prober {
	if logger == nil {
		logger = logrus.New()
	}
	facet, _ := protocol.Resolve(protocol.CharFacet)

	return func(ctx context.Context, address string) Class {
		conn := connection.NewConnection(&connection.ConnectOptions{
			ConnectTimeout: timeout,
			Dial:           connection.DialDefault,
		}, logger)

		entry := logger.WithField("address", address)
		if err := conn.Connect(ctx, address); err != nil {
			entry.WithError(err).Debug("Probe could not connect")
			return ClassUnreachable
		}
		defer func() {
			if err := conn.Disconnect(); err != nil && !errors.Is(err, connection.ErrNotConnected) {
				entry.WithError(err).Debug("Probe disconnect failed")
			}
		}()

		if _, err := conn.ReadCharacteristic(ctx, facet.UUID); err != nil {
			entry.WithError(err).Debug("Probe could not read facet")
			return ClassOther
		}
		return ClassCube
	}
}
