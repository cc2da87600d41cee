//go:build !linux

package halref

import (
	"errors"

	"github.com/openptp/ptpcore"
)

// ErrUnsupportedPlatform is returned by NewUDPNetwork on platforms this
// reference HAL does not implement kernel timestamping for.
var ErrUnsupportedPlatform = errors.New("halref: UDP reference HAL requires linux SO_TIMESTAMPING")

// UDPNetwork is an unsupported-platform stub; see udp_linux.go.
type UDPNetwork struct{}

// UDPHALConfig mirrors the linux configuration surface so callers can
// build against this package on any platform.
type UDPHALConfig struct {
	Interface    string
	MulticastTTL int
}

// NewUDPNetwork always fails outside linux.
func NewUDPNetwork(cfg UDPHALConfig) (*UDPNetwork, error) {
	return nil, ErrUnsupportedPlatform
}

func (n *UDPNetwork) Send(buf []byte, dest ptpcore.DestinationClass) (ptpcore.TxHandle, error) {
	return 0, ErrUnsupportedPlatform
}

func (n *UDPNetwork) TryRecv() ([]byte, ptpcore.Timestamp, ptpcore.PortIdentity, bool) {
	return nil, ptpcore.Timestamp{}, ptpcore.PortIdentity{}, false
}

func (n *UDPNetwork) MTU() int { return 0 }

func (n *UDPNetwork) CaptureTxTimestamp(handle ptpcore.TxHandle) (ptpcore.Timestamp, bool) {
	return ptpcore.Timestamp{}, false
}

func (n *UDPNetwork) Close() error { return ErrUnsupportedPlatform }
