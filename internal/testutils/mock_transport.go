package testutils

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of the session Transport, for asserting exactly
// which BLE calls an operation makes.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func (m *MockTransport) ReadCharacteristic(ctx context.Context, uuid ble.UUID) ([]byte, error) {
	args := m.Called(ctx, uuid)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockTransport) WriteCharacteristic(ctx context.Context, uuid ble.UUID, data []byte) error {
	return m.Called(ctx, uuid, data).Error(0)
}

func (m *MockTransport) Subscribe(ctx context.Context, uuid ble.UUID, handler func(data []byte)) error {
	return m.Called(ctx, uuid, handler).Error(0)
}

func (m *MockTransport) Unsubscribe(ctx context.Context, uuid ble.UUID) error {
	return m.Called(ctx, uuid).Error(0)
}

func (m *MockTransport) Disconnect() error {
	return m.Called().Error(0)
}

// UUIDOf matches a ble.UUID argument against the registry entry called name
func UUIDOf(name string) interface{} {
	want := mustSpec(name).UUID
	return mock.MatchedBy(func(uuid ble.UUID) bool { return uuid.Equal(want) })
}
