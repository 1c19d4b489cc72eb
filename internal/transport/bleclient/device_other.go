//go:build !linux && !darwin

package bleclient

import (
	"errors"

	"github.com/go-ble/ble"
)

func newDevice() (ble.Device, error) {
	return nil, errors.New("ble transport not supported on this platform")
}
