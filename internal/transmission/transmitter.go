package transmission

import "github.com/jmleroy/ce02-hass/internal/controller"

// Transmitter defines the interface for transmitting charge-state snapshots
// to a host.
type Transmitter interface {
	Transmit(r *controller.Reading) error
	IsConnected() bool
}
