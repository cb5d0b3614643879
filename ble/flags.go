package ble

import (
  "fmt"
  "strings"
)

type Flags int

const (
  // Run active scans rather than passive scans (requiring explicit responses from peripherals).
  FlagScanTypeActive Flags = 1 << iota
  // Enable an allowlist for scans. Must be configured with `SetAllowListedAddresses()`.
  FlagEnableDeviceAllowList
)

var flagNames = []struct {
  flag Flags
  name string
}{
  {FlagScanTypeActive, "active scan"},
  {FlagEnableDeviceAllowList, "device allow-list"},
}

func (f Flags) Has(flag Flags) bool {
  return f & flag == flag
}

func (f Flags) String() string {
  var names []string

  for _, n := range flagNames {
    if f.Has(n.flag) {
      names = append(names, n.name)
    }
  }

  if len(names) == 0 {
    return "none"
  }

  return strings.Join(names, ", ")
}

// scanType and filterPolicy map flags onto LE Set Scan Parameters fields.
func (f Flags) scanType() scanType {
  if f.Has(FlagScanTypeActive) {
    return scanTypeActive
  }

  return scanTypePassive
}

func (f Flags) filterPolicy() filterPolicy {
  if f.Has(FlagEnableDeviceAllowList) {
    return filterPolicyAllowListedOnly
  }

  return filterPolicyAcceptAll
}

// HCI values, 0x00 and 0x01 for both fields.
type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

func (s scanType) String() string {
  if s == scanTypeActive {
    return "Active"
  }

  if s == scanTypePassive {
    return "Passive"
  }

  return fmt.Sprintf("scanType(%d)", uint8(s))
}

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (p filterPolicy) String() string {
  if p == filterPolicyAllowListedOnly {
    return "Allow-listed Only"
  }

  if p == filterPolicyAcceptAll {
    return "Accept All"
  }

  return fmt.Sprintf("filterPolicy(%d)", uint8(p))
}
