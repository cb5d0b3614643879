package airthings

import (
  "context"
  "net"

  "github.com/robertof/home-adapters/ble"
)

// Peripheral is a connected device. Disconnect must be called once the connection is no longer
// needed, whatever the outcome of the reads.
type Peripheral interface {
  Read(uuid ble.UUID) ([]byte, error)
  Disconnect() error
}

type Connector interface {
  Connect(ctx context.Context, addr net.HardwareAddr) (Peripheral, error)
}

type ConnectorFunc func(ctx context.Context, addr net.HardwareAddr) (Peripheral, error)

func (f ConnectorFunc) Connect(ctx context.Context, addr net.HardwareAddr) (Peripheral, error) {
  return f(ctx, addr)
}

// BLEConnector connects to devices through the local HCI device.
func BLEConnector(h *ble.Handle) Connector {
  return ConnectorFunc(func(ctx context.Context, addr net.HardwareAddr) (Peripheral, error) {
    p, err := h.Connect(ctx, addr)

    if err != nil {
      return nil, err
    }

    return p, nil
  })
}
