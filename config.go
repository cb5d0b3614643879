package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robertof/home-adapters/adax"
	"github.com/robertof/home-adapters/airthings"
	"github.com/robertof/home-adapters/ble"
	"github.com/robertof/home-adapters/device"
	"github.com/robertof/home-adapters/homeassistant"
	"github.com/robertof/home-adapters/netgear"
	"gopkg.in/yaml.v3"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  ConfigFile string
  DiscoverDevices bool
  BluetoothDeviceId int
  BluetoothConnParams ble.ConnParams
  CollectionInterval time.Duration
  InitialCollectionTimeout time.Duration

  // adapters, nil when not configured.
  Adax *adax.Config
  Netgear *netgear.Config
  HomeAssistant homeassistant.Config
  Airthings []airthings.Config
}

// fileConfig is the layout of the file given with -config. Credentials live here rather than on
// the command line.
type fileConfig struct {
  Adax *adax.Config `yaml:"adax"`
  Netgear *netgear.Config `yaml:"netgear"`
  HomeAssistant homeassistant.Config `yaml:"homeassistant"`
  Airthings []airthings.Config `yaml:"airthings"`
}

type boundDeviceList struct {
  *airthings.Factory
  list *[]airthings.Config
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  cfg, err := d.FromSpec(ds)
  if err != nil {
    return fmt.Errorf("failed to create device: %w", err)
  }

  *d.list = append(*d.list, cfg)

  return nil
}

func loadConfigFile(path string) (fc fileConfig, err error) {
  data, err := os.ReadFile(path)
  if err != nil {
    return fc, fmt.Errorf("failed to read config file: %w", err)
  }

  dec := yaml.NewDecoder(bytes.NewReader(data))
  dec.KnownFields(true)

  if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
    return fc, fmt.Errorf("failed to parse config file %q: %w", path, err)
  }

  return fc, nil
}

func parseArgs(fs *flag.FlagSet, args []string) (cfg config, err error) {
  cfg.BluetoothConnParams = ble.ConnParamsDefault

  var cliDevices []airthings.Config

  fs.StringVar(&cfg.BindAddress, "bind", "localhost:9102", "Where the HTTP server (API and metrics) will bind to")
  fs.StringVar(&cfg.ConfigFile, "config", "", "YAML file with the adax, netgear, homeassistant and airthings settings")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'relaxed')")
  fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  fs.DurationVar(&cfg.CollectionInterval, "interval", 60 * time.Second,
    "How frequently sources are polled. Each source still honours its own cache or scan interval")
  fs.DurationVar(&cfg.InitialCollectionTimeout, "initial-timeout", 30 * time.Second,
    "Timeout for the collection done on start")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  factory := &airthings.Factory{}
  fs.Var(
    &boundDeviceList{Factory: factory, list: &cliDevices},
    "airthings",
    "Device spec for an Airthings Wave in the form of `key=value,key=value`. Can be repeated.\n" +
      factory.Help(),
  )

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if cfg.ConfigFile != "" {
    fc, err := loadConfigFile(cfg.ConfigFile)
    if err != nil {
      return cfg, err
    }

    cfg.Adax = fc.Adax
    cfg.Netgear = fc.Netgear
    cfg.HomeAssistant = fc.HomeAssistant
    cfg.Airthings = fc.Airthings
  }

  cfg.Airthings = append(cfg.Airthings, cliDevices...)

  if cfg.CollectionInterval <= 0 {
    return cfg, errors.New("-interval must be positive")
  }

  if cfg.DiscoverDevices {
    return cfg, nil
  }

  if cfg.Adax == nil && cfg.Netgear == nil && len(cfg.Airthings) == 0 {
    return cfg, errors.New("at least one adapter (adax, netgear or airthings) must be configured")
  }

  if cfg.Adax != nil && (cfg.Adax.AccountID == "" || cfg.Adax.Password == "") {
    return cfg, errors.New("adax: account_id and password are required")
  }

  if cfg.Netgear != nil {
    if cfg.Netgear.Password == "" {
      return cfg, errors.New("netgear: password is required")
    }

    if cfg.HomeAssistant.URL == "" || cfg.HomeAssistant.Token == "" {
      return cfg, errors.New("netgear: homeassistant url and token are required for presence detection")
    }
  }

  return cfg, nil
}

func ParseArgs() config {
  cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}
