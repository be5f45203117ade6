package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/groutine"
)

// DefaultConnectTimeout bounds dialing plus profile discovery
const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newPlatformDevice

var (
	defaultDeviceOnce sync.Once
	defaultDevice     ble.Device
	defaultDeviceErr  error
)

// DefaultDevice creates the platform device once and installs it as the go-ble default.
func DefaultDevice() (ble.Device, error) {
	defaultDeviceOnce.Do(func() {
		d, err := DeviceFactory()
		if err != nil {
			defaultDeviceErr = NormalizeError(fmt.Errorf("failed to create BLE device: %w", err))
			return
		}
		ble.SetDefaultDevice(d)
		defaultDevice = d
	})
	return defaultDevice, defaultDeviceErr
}

// Dialer opens a GATT client connection to address
type Dialer func(ctx context.Context, address string) (ble.Client, error)

// DialDefault dials through the default platform device
func DialDefault(ctx context.Context, address string) (ble.Client, error) {
	if _, err := DefaultDevice(); err != nil {
		return nil, err
	}
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}

// ConnectOptions configures the BLE connection
type ConnectOptions struct {
	ConnectTimeout time.Duration
	Dial           Dialer
}

// DefaultConnectOptions returns the options used by the CLI
func DefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		ConnectTimeout: DefaultConnectTimeout,
		Dial:           DialDefault,
	}
}

// Connection is a go-ble GATT client exposing characteristic-level access by UUID.
type Connection struct {
	opts   *ConnectOptions
	logger *logrus.Logger

	connMutex   sync.RWMutex
	client      ble.Client
	address     string
	chars       map[string]*ble.Characteristic
	isConnected bool
	stopWatch   context.CancelFunc

	writeMutex sync.Mutex
}

// NewConnection creates a disconnected Connection. A nil opts uses DefaultConnectOptions.
func NewConnection(opts *ConnectOptions, logger *logrus.Logger) *Connection {
	if opts == nil {
		opts = DefaultConnectOptions()
	}
	if opts.Dial == nil {
		opts.Dial = DialDefault
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Connection{
		opts:   opts,
		logger: logger,
	}
}

// Connect dials address and discovers its GATT profile
func (c *Connection) Connect(ctx context.Context, address string) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.isConnected {
		return ErrAlreadyConnected
	}

	c.logger.WithField("address", address).Info("Connecting to BLE device...")

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	client, err := c.opts.Dial(connectCtx, address)
	if err != nil {
		return fmt.Errorf("failed to connect to device: %w", err)
	}

	c.logger.Info("Connected to device, discovering services...")

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	chars := make(map[string]*ble.Characteristic)
	for _, service := range profile.Services {
		for _, char := range service.Characteristics {
			chars[char.UUID.String()] = char
		}
	}

	c.client = client
	c.address = address
	c.chars = chars
	c.isConnected = true

	watchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	c.stopWatch = stop
	groutine.Go(watchCtx, "ble-disconnect-watch", func(ctx context.Context) {
		c.watchDisconnect(ctx, client)
	})

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Info("BLE connection established")
	return nil
}

// watchDisconnect marks the connection closed when the peripheral drops it
func (c *Connection) watchDisconnect(ctx context.Context, client ble.Client) {
	select {
	case <-client.Disconnected():
	case <-ctx.Done():
		return
	}

	c.connMutex.Lock()
	defer c.connMutex.Unlock()
	if c.client != client {
		return
	}
	c.reset()
	c.logger.WithField("address", c.address).Warn("Peripheral disconnected")
}

func (c *Connection) characteristic(uuid ble.UUID) (ble.Client, *ble.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.isConnected {
		return nil, nil, ErrNotConnected
	}
	char, ok := c.chars[uuid.String()]
	if !ok {
		return nil, nil, &NotFoundError{UUID: uuid.String()}
	}
	return c.client, char, nil
}

// ReadCharacteristic reads the characteristic value
func (c *Connection) ReadCharacteristic(ctx context.Context, uuid ble.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, char, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", uuid, NormalizeError(err))
	}
	c.logger.WithFields(logrus.Fields{
		"uuid":  uuid.String(),
		"bytes": len(data),
	}).Debug("Read characteristic")
	return data, nil
}

// WriteCharacteristic writes data with response
func (c *Connection) WriteCharacteristic(ctx context.Context, uuid ble.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := client.WriteCharacteristic(char, data, false); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", uuid, NormalizeError(err))
	}
	c.logger.WithFields(logrus.Fields{
		"uuid":  uuid.String(),
		"bytes": len(data),
	}).Debug("Wrote characteristic")
	return nil
}

// Subscribe enables notifications on the characteristic
func (c *Connection) Subscribe(ctx context.Context, uuid ble.UUID, handler func(data []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}

	if err := client.Subscribe(char, false, func(data []byte) { handler(data) }); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", uuid, NormalizeError(err))
	}
	c.logger.WithField("uuid", uuid.String()).Debug("Subscribed")
	return nil
}

// Unsubscribe disables notifications on the characteristic
func (c *Connection) Unsubscribe(ctx context.Context, uuid ble.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}

	if err := client.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", uuid, NormalizeError(err))
	}
	c.logger.WithField("uuid", uuid.String()).Debug("Unsubscribed")
	return nil
}

// IsConnected returns whether the connection is active
func (c *Connection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnected
}

// HasCharacteristic reports whether the connected peripheral exposes uuid
func (c *Connection) HasCharacteristic(uuid ble.UUID) bool {
	_, _, err := c.characteristic(uuid)
	return err == nil
}

// Disconnect closes the BLE connection
func (c *Connection) Disconnect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.isConnected {
		return ErrNotConnected
	}

	if err := c.client.CancelConnection(); err != nil {
		c.logger.WithError(err).Warn("Error disconnecting from device")
	}
	c.reset()

	c.logger.WithField("address", c.address).Info("Disconnected from BLE device")
	return nil
}

// reset clears the connection state; connMutex must be held
func (c *Connection) reset() {
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.isConnected = false
	c.client = nil
	c.chars = nil
}
