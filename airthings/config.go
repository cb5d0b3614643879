package airthings

import (
  "fmt"
  "net"
  "strings"
  "time"

  "github.com/robertof/home-adapters/device"
)

const (
  DefaultScanInterval = 300 * time.Second
  DefaultRetryCount = 3
  DefaultRetryDelay = 500 * time.Millisecond
)

type Config struct {
  Name string `yaml:"name"`
  Addr string `yaml:"addr"`
  Plus bool `yaml:"plus"`
  // Also read the device clock. Standard devices only.
  DateTime bool `yaml:"datetime"`
  ScanInterval time.Duration `yaml:"scan_interval"`
  // Retries after the first failed attempt. Defaults to DefaultRetryCount when unset.
  RetryCount *int `yaml:"retry_count"`
  RetryDelay time.Duration `yaml:"retry_delay"`
}

func (c Config) String() string {
  return fmt.Sprintf("airthings[name=%q, addr=%v, plus=%v]", c.Name, c.Addr, c.Plus)
}

func (c Config) hardwareAddr() (net.HardwareAddr, error) {
  hwAddr, err := net.ParseMAC(c.Addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  return hwAddr, nil
}

func (c Config) withDefaults() Config {
  if c.Name == "" {
    c.Name = "airthings-" + strings.ToLower(strings.ReplaceAll(c.Addr, ":", ""))
  }

  if c.ScanInterval <= 0 {
    c.ScanInterval = DefaultScanInterval
  }

  if c.RetryCount == nil || *c.RetryCount < 0 {
    retries := DefaultRetryCount
    c.RetryCount = &retries
  }

  if c.RetryDelay <= 0 {
    c.RetryDelay = DefaultRetryDelay
  }

  return c
}

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (c Config, err error) {
  c.Name = spec.Name()
  c.Addr = spec.Addr()

  if _, err := c.hardwareAddr(); err != nil {
    return c, err
  }

  if c.Plus, err = spec.Bool("plus", false); err != nil {
    return c, err
  }

  if c.DateTime, err = spec.Bool("datetime", false); err != nil {
    return c, err
  }

  if c.ScanInterval, err = spec.Duration("scan-interval", DefaultScanInterval); err != nil {
    return c, err
  }

  if c.RetryDelay, err = spec.Duration("retry-delay", DefaultRetryDelay); err != nil {
    return c, err
  }

  retries, err := spec.Int("retries", DefaultRetryCount)
  if err != nil {
    return c, err
  }

  c.RetryCount = &retries

  return c.withDefaults(), nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this Airthings Wave device
name (string): Name of this device, defaults to airthings-<mac>
plus (bool): Device is a Wave Plus (single combined characteristic)
datetime (bool): Also read the device clock (standard devices only)
scan-interval (duration): Minimum time between two reads, defaults to 5m
retries (int): Retries after a failed read, defaults to 3
retry-delay (duration): Pause between retries, defaults to 500ms`
}
