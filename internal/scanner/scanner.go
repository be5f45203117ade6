package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/pkg/connection"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Radio is the part of a go-ble device the scanner drives
type Radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// RadioFactory returns the radio used for scanning (can be overridden in tests)
var RadioFactory = func() (Radio, error) {
	return connection.DefaultDevice()
}

// DiscoveredDevice is the latest advertisement seen from one address
type DiscoveredDevice struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	LastSeen    time.Time `json:"last_seen"`
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	devices *hashmap.Map[string, *DiscoveredDevice]
	logger  *logrus.Logger
	opts    *ScanOptions
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger}
}

// Scan listens for advertisements for opts.Duration and returns the devices seen,
// sorted by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progress ProgressCallback) ([]DiscoveredDevice, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	s.devices = hashmap.New[string, *DiscoveredDevice]()
	s.opts = opts
	defer func() { s.opts = nil }()

	radio, err := RadioFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progress("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	err = radio.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", connection.NormalizeError(err))
	}
	// the caller cancelled, as opposed to the scan window running out
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progress("Processing results")

	return s.snapshot(), nil
}

// handleAdvertisement updates an existing device or records a new one
func (s *Scanner) handleAdvertisement(adv ble.Advertisement) {
	addr := adv.Addr().String()

	dev, existing := s.devices.Get(addr)
	if !existing {
		if !s.shouldInclude(addr) {
			return
		}
		dev, existing = s.devices.GetOrInsert(addr, &DiscoveredDevice{Address: addr})
	}

	// some peripherals only send their name in the scan response
	if name := adv.LocalName(); name != "" {
		dev.Name = name
	}
	dev.RSSI = adv.RSSI()
	dev.Connectable = adv.Connectable()
	dev.LastSeen = time.Now()

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name,
			"address": addr,
			"rssi":    dev.RSSI,
		}).Info("Discovered new device")
	}
}

// shouldInclude applies the allow/block filters
func (s *Scanner) shouldInclude(addr string) bool {
	for _, blocked := range s.opts.BlockList {
		if addr == blocked {
			return false
		}
	}
	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, a := range s.opts.AllowList {
		if addr == a {
			return true
		}
	}
	return false
}

func (s *Scanner) snapshot() []DiscoveredDevice {
	devs := make([]DiscoveredDevice, 0, s.devices.Len())
	s.devices.Range(func(_ string, value *DiscoveredDevice) bool {
		devs = append(devs, *value)
		return true
	})
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
	return devs
}
