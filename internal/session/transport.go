package session

import (
	"context"

	"github.com/go-ble/ble"
)

// Transport is the BLE capability a session drives. Errors are propagated unchanged;
// timeouts and cancellation are the transport's responsibility. Subscription handlers
// run on the transport's callback goroutine and must not block.
type Transport interface {
	Connect(ctx context.Context, address string) error
	ReadCharacteristic(ctx context.Context, uuid ble.UUID) ([]byte, error)
	WriteCharacteristic(ctx context.Context, uuid ble.UUID, data []byte) error
	Subscribe(ctx context.Context, uuid ble.UUID, handler func(data []byte)) error
	Unsubscribe(ctx context.Context, uuid ble.UUID) error
	Disconnect() error
}
