//go:build linux

package connection

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newPlatformDevice() (ble.Device, error) {
	return linux.NewDevice()
}
