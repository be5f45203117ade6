package testutils

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/flipcube/internal/protocol"
)

// ErrFakeNotConnected is returned by FakeCube calls made while disconnected
var ErrFakeNotConnected = errors.New("fake cube: device not connected")

// FacetSetting is the per-facet configuration stored by FakeCube
type FacetSetting struct {
	Mode     protocol.FacetMode
	Pomodoro uint32
	Color    protocol.RGB
}

// FakeCube is an in-memory cube peripheral implementing the session Transport.
//
// It emulates the firmware closely enough for protocol tests: commands are echoed
// on command_input with the accepted status, results land on command_result, both
// history layouts are served, and facet notifications are held back while locked.
// Exported fields configure the device and may be changed between calls; use
// the methods once a session is running.
type FakeCube struct {
	Firmware      string
	Name          string
	Battery       byte
	Facet         byte
	Locked        bool
	Paused        bool
	AutoPause     uint16
	Password      string
	Clock         uint32
	Calibration   uint32
	SystemState   []byte
	EventData     []byte
	Accelerometer []byte
	Brightness    byte
	BlinkInterval byte
	Facets        [protocol.FacetCount]FacetSetting

	// LegacyBlocks are served from command_result after a history command, followed by a sentinel
	LegacyBlocks [][]byte
	// History is served one entry per history_data request in the aligned layout
	History []protocol.HistoryEntry

	// Rejected opcodes are echoed with a non-accepted status
	Rejected map[protocol.Opcode]bool
	// ConnectErr, ReadErr, WriteErr, SubscribeErr and UnsubscribeErr inject transport failures
	ConnectErr     error
	ReadErr        error
	WriteErr       error
	SubscribeErr   error
	UnsubscribeErr error
	// PanicOnDisconnect makes Disconnect panic, for teardown tests
	PanicOnDisconnect bool

	mu               sync.Mutex
	connected        bool
	loggedIn         bool
	commandInput     []byte
	commandResult    []byte
	historyData      []byte
	legacyQueue      [][]byte
	facetPending     bool
	calibrationReset int
	subs             map[string]func([]byte)
	reads            map[string]int
	writes           map[string]int
	frames           []protocol.Frame
}

// NewFakeCube returns a cube on current firmware with default password and facet 0
func NewFakeCube() *FakeCube {
	return &FakeCube{
		Firmware:    "FW_v3.50",
		Name:        "TimeFlip v2.0",
		Battery:     87,
		Password:    protocol.DefaultPassword,
		SystemState: []byte{0x00, 0x00, 0x00, 0x01},
		EventData:   make([]byte, 20),
	}
}

// NewLegacyFakeCube returns a cube on firmware predating the current operation set
func NewLegacyFakeCube() *FakeCube {
	f := NewFakeCube()
	f.Firmware = "FW_v3.20"
	f.Accelerometer = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x40}
	return f
}

func key(uuid ble.UUID) string { return uuid.String() }

var (
	uuidBattery     = key(mustSpec(protocol.CharBatteryLevel).UUID)
	uuidFirmware    = key(mustSpec(protocol.CharFirmwareRevision).UUID)
	uuidName        = key(mustSpec(protocol.CharDeviceName).UUID)
	uuidEvent       = key(mustSpec(protocol.CharEventData).UUID)
	uuidFacet       = key(mustSpec(protocol.CharFacet).UUID)
	uuidResult      = key(mustSpec(protocol.CharCommandResult).UUID)
	uuidInput       = key(mustSpec(protocol.CharCommandInput).UUID)
	uuidCalibration = key(mustSpec(protocol.CharCalibrationVersion).UUID)
	uuidPassword    = key(mustSpec(protocol.CharPasswordInput).UUID)
	uuidHistory     = key(mustSpec(protocol.CharHistoryData).UUID)
)

func mustSpec(name string) protocol.CharacteristicSpec {
	spec, err := protocol.Resolve(name)
	if err != nil {
		panic(err)
	}
	return spec
}

func (f *FakeCube) current() bool {
	v, err := protocol.ParseFirmwareVersion(f.Firmware)
	return err == nil && v >= protocol.LegacyFirmwareThreshold
}

// Connect implements the session Transport
func (f *FakeCube) Connect(ctx context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	f.subs = make(map[string]func([]byte))
	return nil
}

// Disconnect implements the session Transport
func (f *FakeCube) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanicOnDisconnect {
		panic("fake cube: disconnect exploded")
	}
	if !f.connected {
		return ErrFakeNotConnected
	}
	f.connected = false
	f.loggedIn = false
	f.subs = nil
	return nil
}

// ReadCharacteristic implements the session Transport
func (f *FakeCube) ReadCharacteristic(ctx context.Context, uuid ble.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(uuid)
	f.count(&f.reads, k)
	if !f.connected {
		return nil, ErrFakeNotConnected
	}
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}

	switch k {
	case uuidBattery:
		return []byte{f.Battery}, nil
	case uuidFirmware:
		return padded([]byte(f.Firmware), 20), nil
	case uuidName:
		return padded([]byte(f.Name), 20), nil
	case uuidEvent:
		if f.current() {
			return clone(f.EventData), nil
		}
		return clone(f.Accelerometer), nil
	case uuidFacet:
		return []byte{f.Facet}, nil
	case uuidInput:
		return clone(f.commandInput), nil
	case uuidResult:
		if !f.loggedIn {
			return []byte{0x00}, nil
		}
		if f.legacyQueue != nil {
			block := f.legacyQueue[0]
			if len(f.legacyQueue) > 1 {
				f.legacyQueue = f.legacyQueue[1:]
			}
			return clone(block), nil
		}
		return padded(f.commandResult, 20), nil
	case uuidCalibration:
		if f.current() {
			return clone(f.SystemState), nil
		}
		return binary.BigEndian.AppendUint32(nil, f.Calibration), nil
	case uuidHistory:
		return clone(f.historyData), nil
	default:
		return nil, errors.New("fake cube: characteristic not found")
	}
}

// WriteCharacteristic implements the session Transport
func (f *FakeCube) WriteCharacteristic(ctx context.Context, uuid ble.UUID, data []byte) error {
	f.mu.Lock()
	k := key(uuid)
	f.count(&f.writes, k)
	if !f.connected {
		f.mu.Unlock()
		return ErrFakeNotConnected
	}
	if f.WriteErr != nil {
		f.mu.Unlock()
		return f.WriteErr
	}

	var notify []byte
	switch k {
	case uuidPassword:
		f.loggedIn = string(data) == f.Password
	case uuidInput:
		notify = f.command(protocol.Frame(clone(data)))
	case uuidCalibration:
		if len(data) == 4 {
			f.Calibration = binary.BigEndian.Uint32(data)
		}
	case uuidHistory:
		f.historyData = f.historyBlock(data)
	default:
		f.mu.Unlock()
		return errors.New("fake cube: characteristic not writable")
	}
	handler := f.subs[uuidFacet]
	f.mu.Unlock()

	if notify != nil && handler != nil {
		handler(notify)
	}
	return nil
}

// command applies frame and returns a facet notification payload when unlocking
// released a held-back facet change. f.mu must be held.
func (f *FakeCube) command(frame protocol.Frame) []byte {
	f.frames = append(f.frames, frame)
	f.legacyQueue = nil
	op := frame.Opcode()

	if f.Rejected[op] {
		f.commandInput = []byte{byte(op), 0x01}
		return nil
	}
	f.commandInput = []byte{byte(op), protocol.StatusAccepted}

	var notify []byte
	switch op {
	case protocol.OpStatus:
		if f.Locked {
			// pause and auto-pause are not reported while locked
			f.commandResult = []byte{0x01, 0xff, 0xff, 0xff}
		} else {
			f.commandResult = []byte{0x02, onOff(f.Paused), byte(f.AutoPause >> 8), byte(f.AutoPause)}
		}
	case protocol.OpPause:
		f.Paused = frame[1] == 0x01
	case protocol.OpLock:
		f.Locked = frame[1] == 0x01
		if !f.Locked && f.facetPending {
			f.facetPending = false
			notify = []byte{f.Facet}
		}
	case protocol.OpAutoPause:
		f.AutoPause = binary.BigEndian.Uint16(frame[1:3])
	case protocol.OpSetName:
		f.Name = string(frame[2 : 2+int(frame[1])])
	case protocol.OpSetPassword:
		f.Password = string(frame[1:])
	case protocol.OpTimeRead:
		f.commandResult = append([]byte{byte(op)}, binary.BigEndian.AppendUint32(nil, f.Clock)...)
	case protocol.OpTimeWrite:
		f.Clock = binary.BigEndian.Uint32(frame[1:5])
	case protocol.OpBrightness:
		f.Brightness = frame[1]
	case protocol.OpBlinkFrequency:
		f.BlinkInterval = frame[1]
	case protocol.OpColorSet:
		if int(frame[1]) < len(f.Facets) {
			f.Facets[frame[1]].Color = protocol.RGB{R: frame[2], G: frame[3], B: frame[4]}
		}
	case protocol.OpFacetWrite:
		if int(frame[1]) < len(f.Facets) {
			f.Facets[frame[1]].Mode = protocol.FacetMode(frame[2])
			f.Facets[frame[1]].Pomodoro = binary.BigEndian.Uint32(frame[3:7])
		}
	case protocol.OpFacetRead:
		facet := frame[1]
		var setting FacetSetting
		if int(facet) < len(f.Facets) {
			setting = f.Facets[facet]
		}
		res := []byte{byte(op), facet, byte(setting.Mode)}
		res = binary.BigEndian.AppendUint32(res, setting.Pomodoro)
		f.commandResult = binary.BigEndian.AppendUint32(res, 0)
	case protocol.OpHistory:
		f.legacyQueue = append(append([][]byte(nil), f.LegacyBlocks...), make([]byte, protocol.LegacyBlockSize))
	case protocol.OpHistoryDump:
		f.LegacyBlocks = nil
		f.History = nil
	case protocol.OpCalibrationReset:
		f.calibrationReset++
	}
	return notify
}

func (f *FakeCube) historyBlock(request []byte) []byte {
	if len(request) != 5 || request[0] != byte(protocol.OpHistory) {
		return make([]byte, 20)
	}
	n := binary.BigEndian.Uint32(request[1:5])
	if int(n) >= len(f.History) {
		return make([]byte, 20)
	}
	return padded(EncodeCurrentBlock(f.History[n]), 20)
}

// Subscribe implements the session Transport
func (f *FakeCube) Subscribe(ctx context.Context, uuid ble.UUID, handler func(data []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrFakeNotConnected
	}
	if f.SubscribeErr != nil {
		return f.SubscribeErr
	}
	f.subs[key(uuid)] = handler
	return nil
}

// Unsubscribe implements the session Transport
func (f *FakeCube) Unsubscribe(ctx context.Context, uuid ble.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnsubscribeErr != nil {
		return f.UnsubscribeErr
	}
	delete(f.subs, key(uuid))
	return nil
}

// Flip turns the cube to facet. The facet notification is held back while locked
// and sent on unlock.
func (f *FakeCube) Flip(facet byte) {
	f.mu.Lock()
	changed := f.Facet != facet
	f.Facet = facet
	if f.Locked {
		f.facetPending = f.facetPending || changed
		f.mu.Unlock()
		return
	}
	handler := f.subs[uuidFacet]
	f.mu.Unlock()

	if handler != nil {
		handler([]byte{facet})
	}
}

// PushEvent notifies an event_data block
func (f *FakeCube) PushEvent(block []byte) {
	f.notify(uuidEvent, block)
}

// PushHistory notifies an aligned history block for entry
func (f *FakeCube) PushHistory(entry protocol.HistoryEntry) {
	f.notify(uuidHistory, padded(EncodeCurrentBlock(entry), 20))
}

// Notify sends a raw notification on the characteristic with uuid
func (f *FakeCube) Notify(uuid ble.UUID, data []byte) {
	f.notify(key(uuid), data)
}

func (f *FakeCube) notify(k string, data []byte) {
	f.mu.Lock()
	handler := f.subs[k]
	f.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// Subscribed reports whether a handler is registered for uuid
func (f *FakeCube) Subscribed(uuid ble.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[key(uuid)]
	return ok
}

// Connected reports whether the fake is connected
func (f *FakeCube) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Reads returns how many times uuid was read
func (f *FakeCube) Reads(uuid ble.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[key(uuid)]
}

// Writes returns how many times uuid was written
func (f *FakeCube) Writes(uuid ble.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[key(uuid)]
}

// TotalWrites returns the number of writes to any characteristic
func (f *FakeCube) TotalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.writes {
		n += c
	}
	return n
}

// Frames returns the command frames written so far
func (f *FakeCube) Frames() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Frame(nil), f.frames...)
}

// CalibrationResets returns how many calibration reset commands were received
func (f *FakeCube) CalibrationResets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calibrationReset
}

// ResetCounters clears read/write counters and the frame log
func (f *FakeCube) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = nil
	f.writes = nil
	f.frames = nil
}

func (f *FakeCube) count(m *map[string]int, k string) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[k]++
}

// EncodeCurrentBlock encodes entry in the aligned 18-byte layout
func EncodeCurrentBlock(entry protocol.HistoryEntry) []byte {
	block := make([]byte, 0, protocol.CurrentBlockSize)
	block = binary.BigEndian.AppendUint32(block, entry.EventNumber)
	block = append(block, entry.Facet)
	block = binary.BigEndian.AppendUint64(block, entry.Timestamp)
	for i := 0; i < 5; i++ {
		block = append(block, byte(entry.Duration>>(8*i)))
	}
	return block
}

// LegacyRecord packs a facet and duration the way legacy firmware does. Only the
// top 16 and bottom 2 bits of the duration survive.
func LegacyRecord(facet uint8, duration uint32) []byte {
	return []byte{byte(duration >> 16), byte(duration >> 8), facet<<2 | byte(duration&0x03)}
}

// LegacyBlocks packs records into 21-byte blocks, zero-filling the last one,
// and stores count in the first two bytes of the first block.
func LegacyBlocks(count uint16, records ...[]byte) [][]byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(r)
	}
	for buf.Len()%protocol.LegacyBlockSize != 0 || buf.Len() == 0 {
		buf.WriteByte(0)
	}

	raw := buf.Bytes()
	binary.BigEndian.PutUint16(raw[:2], count)

	var blocks [][]byte
	for i := 0; i < len(raw); i += protocol.LegacyBlockSize {
		blocks = append(blocks, clone(raw[i:i+protocol.LegacyBlockSize]))
	}
	return blocks
}

func onOff(state bool) byte {
	if state {
		return 0x01
	}
	return 0x02
}

func padded(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
