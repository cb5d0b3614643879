package ble

import (
  "fmt"
  "slices"

  "github.com/go-ble/ble/linux/hci/cmd"
)

// ConnParams selects a preset of link-layer parameters used when connecting to peripherals.
type ConnParams string

const (
  ConnParamsDefault ConnParams = "default"
  // Wave devices sitting at the edge of the radio range tend to drop fast connections before the
  // profile discovery completes.
  ConnParamsRelaxed ConnParams = "relaxed"
)

var allConnParams = []ConnParams{ConnParamsDefault, ConnParamsRelaxed}

// *flag.Value
func (c *ConnParams) String() string {
  if c == nil || *c == "" {
    return string(ConnParamsDefault)
  }

  return string(*c)
}

func (c *ConnParams) Set(v string) error {
  if v == "" {
    *c = ConnParamsDefault
    return nil
  }

  p := ConnParams(v)

  if !slices.Contains(allConnParams, p) {
    return fmt.Errorf("unknown connection param %v (must be one of %v)", p, allConnParams)
  }

  *c = p
  return nil
}

// encoding.TextUnmarshaler
func (c *ConnParams) UnmarshalText(text []byte) error {
  return c.Set(string(text))
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
  p := cmd.LECreateConnection{
    LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    InitiatorFilterPolicy: 0x00,      // White list is not used
    PeerAddressType:       0x00,      // Public Device Address
    PeerAddress:           [6]byte{}, //
    OwnAddressType:        0x00,      // Public Device Address
    ConnIntervalMin:       0x0018,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnIntervalMax:       0x0028,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
    SupervisionTimeout:    0x01f4,    // 0x000A - 0x0C80; N * 10 msec
    MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
    MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
  }

  switch c {
  case ConnParamsDefault, "":
    break
  case ConnParamsRelaxed:
    // supervision timeout > interval max * (latency + 1) * 2, see the link layer specification,
    // section "Connection Parameters".
    p.LEScanInterval     = 0x0060 // 60ms
    p.LEScanWindow       = 0x0030 // 30ms
    p.ConnIntervalMin    = 0x0050 // 100ms
    p.ConnIntervalMax    = 0x0078 // 150ms
    p.SupervisionTimeout = 0x0c80 // 32s
  default:
    panic("unknown Bluetooth connection param: " + c)
  }

  return p
}
