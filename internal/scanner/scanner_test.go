package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/pkg/connection"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockAdvertisement implements the ble.Advertisement methods the scanner reads
type MockAdvertisement struct {
	ble.Advertisement
	addr        string
	name        string
	rssi        int
	connectable bool
}

func (a *MockAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a *MockAdvertisement) LocalName() string { return a.name }
func (a *MockAdvertisement) RSSI() int         { return a.rssi }
func (a *MockAdvertisement) Connectable() bool { return a.connectable }

// MockRadio replays advertisements from Scan
type MockRadio struct {
	mock.Mock
	adverts []ble.Advertisement
}

func (r *MockRadio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := r.Called(ctx, allowDup)
	for _, adv := range r.adverts {
		h(adv)
	}
	return args.Error(0)
}

type ScannerTestSuite struct {
	suite.Suite

	radio           *MockRadio
	originalFactory func() (Radio, error)
	scanner         *Scanner
}

func (suite *ScannerTestSuite) SetupSuite() {
	suite.originalFactory = RadioFactory
}

func (suite *ScannerTestSuite) TearDownSuite() {
	RadioFactory = suite.originalFactory
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.radio = &MockRadio{}
	RadioFactory = func() (Radio, error) { return suite.radio, nil }

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	suite.scanner = NewScanner(logger)
}

func adv(addr, name string, rssi int) *MockAdvertisement {
	return &MockAdvertisement{addr: addr, name: name, rssi: rssi, connectable: true}
}

func (suite *ScannerTestSuite) TestScanCollectsDevices() {
	// GOAL: Verify repeated advertisements collapse into one device carrying the latest values
	//
	// TEST SCENARIO: three adverts from two addresses → two devices sorted by address → name kept from first advert

	suite.radio.adverts = []ble.Advertisement{
		adv("bb:bb:bb:bb:bb:bb", "TimeFlip", -70),
		adv("aa:aa:aa:aa:aa:aa", "Headset", -40),
		adv("bb:bb:bb:bb:bb:bb", "", -55),
	}
	suite.radio.On("Scan", mock.Anything, false).Return(context.DeadlineExceeded).Once()

	var phases []string
	devices, err := suite.scanner.Scan(context.Background(), &ScanOptions{Duration: time.Second, DuplicateFilter: true},
		func(phase string) { phases = append(phases, phase) })

	suite.Require().NoError(err, "scan window expiry MUST NOT be reported as an error")
	suite.Require().Len(devices, 2)
	suite.Equal("aa:aa:aa:aa:aa:aa", devices[0].Address, "devices MUST be sorted by address")
	suite.Equal("bb:bb:bb:bb:bb:bb", devices[1].Address)
	suite.Equal("TimeFlip", devices[1].Name, "an empty scan-response name MUST NOT erase the known name")
	suite.Equal(-55, devices[1].RSSI, "RSSI MUST track the latest advertisement")
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
	suite.radio.AssertExpectations(suite.T())
}

func (suite *ScannerTestSuite) TestScanFilters() {
	suite.radio.adverts = []ble.Advertisement{
		adv("aa:aa:aa:aa:aa:aa", "a", -40),
		adv("bb:bb:bb:bb:bb:bb", "b", -40),
		adv("cc:cc:cc:cc:cc:cc", "c", -40),
	}

	suite.Run("block list", func() {
		suite.radio.On("Scan", mock.Anything, true).Return(nil).Once()

		devices, err := suite.scanner.Scan(context.Background(),
			&ScanOptions{Duration: time.Second, BlockList: []string{"bb:bb:bb:bb:bb:bb"}}, nil)

		suite.Require().NoError(err)
		suite.Len(devices, 2, "blocked address MUST be skipped")
	})

	suite.Run("allow list", func() {
		suite.radio.On("Scan", mock.Anything, true).Return(nil).Once()

		devices, err := suite.scanner.Scan(context.Background(),
			&ScanOptions{Duration: time.Second, AllowList: []string{"cc:cc:cc:cc:cc:cc"}}, nil)

		suite.Require().NoError(err)
		suite.Require().Len(devices, 1, "only allowed addresses MUST be kept")
		suite.Equal("cc:cc:cc:cc:cc:cc", devices[0].Address)
	})
}

func (suite *ScannerTestSuite) TestScanErrors() {
	suite.Run("bluetooth off is normalized", func() {
		suite.radio.On("Scan", mock.Anything, mock.Anything).
			Return(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")).Once()

		_, err := suite.scanner.Scan(context.Background(), nil, nil)
		suite.ErrorIs(err, connection.ErrBluetoothOff, "platform error MUST normalize to ErrBluetoothOff")
	})

	suite.Run("radio creation failure", func() {
		RadioFactory = func() (Radio, error) { return nil, connection.ErrNotInitialized }

		_, err := suite.scanner.Scan(context.Background(), nil, nil)
		suite.ErrorIs(err, connection.ErrNotInitialized)
	})

	suite.Run("caller cancellation is reported", func() {
		RadioFactory = func() (Radio, error) { return suite.radio, nil }
		suite.radio.On("Scan", mock.Anything, mock.Anything).Return(context.Canceled).Once()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := suite.scanner.Scan(ctx, nil, nil)
		suite.ErrorIs(err, context.Canceled, "cancelled scan MUST report the cancellation")
	})
}

func (suite *ScannerTestSuite) TestClassify() {
	// GOAL: Verify each probe outcome lands in its own group
	//
	// TEST SCENARIO: four devices with cube/other/unreachable probes → grouped by outcome, scan order kept

	devices := []DiscoveredDevice{
		{Address: "aa"}, {Address: "bb"}, {Address: "cc"}, {Address: "dd"},
	}
	outcomes := map[string]Class{"aa": ClassCube, "bb": ClassOther, "cc": ClassUnreachable, "dd": ClassCube}

	var probed []string
	discovery, err := Classify(context.Background(), devices, func(_ context.Context, address string) Class {
		probed = append(probed, address)
		return outcomes[address]
	}, nil)

	suite.Require().NoError(err)
	suite.Equal([]string{"aa", "bb", "cc", "dd"}, probed, "every device MUST be probed in order")
	suite.Equal([]DiscoveredDevice{{Address: "aa"}, {Address: "dd"}}, discovery.Cubes)
	suite.Equal([]DiscoveredDevice{{Address: "bb"}}, discovery.Others)
	suite.Equal([]DiscoveredDevice{{Address: "cc"}}, discovery.Unreachable)
	suite.Equal(4, discovery.Total())
}

func (suite *ScannerTestSuite) TestClassifyStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Classify(ctx, []DiscoveredDevice{{Address: "aa"}, {Address: "bb"}}, func(context.Context, string) Class {
		calls++
		cancel()
		return ClassCube
	}, nil)

	suite.ErrorIs(err, context.Canceled)
	suite.Equal(1, calls, "classification MUST stop probing once cancelled")
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
