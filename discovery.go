package main

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/home-adapters/airthings"
	"github.com/robertof/home-adapters/ble"
)

type discoveredDevice struct {
  name string
  connectable bool
  services map[string]bool
  airthingsSerial uint32
  isAirthings bool
}

// merge folds a new advertisement for the same address into what has been seen so far.
func (d *discoveredDevice) merge(name string, connectable bool, services []string, manufacturerData []byte) {
  if d.name == "" {
    d.name = name
  }

  d.connectable = connectable

  if d.services == nil {
    d.services = make(map[string]bool)
  }

  for _, uuid := range services {
    d.services[uuid] = true
  }

  if serial, ok := airthings.SerialNumber(manufacturerData); ok {
    d.airthingsSerial = serial
    d.isAirthings = true
  }
}

func (d *discoveredDevice) serviceList() []string {
  services := maps.Keys(d.services)
  sort.Strings(services)

  return services
}

func doDeviceDiscovery(cfg config) {
  log.Info().Msg("Starting in device discovery mode - collecting devices for 5 seconds...")

  handle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, ble.FlagScanTypeActive)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      5 * time.Second,
    ),
  )

  devices := make(map[string]*discoveredDevice)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    services := make([]string, 0, len(a.Services()))

    for _, uuid := range a.Services() {
      services = append(services, uuid.String())
    }

    addr := a.Addr().String()
    info, ok := devices[addr]

    if !ok {
      info = &discoveredDevice{}
      devices[addr] = info
    }

    info.merge(a.LocalName(), a.Connectable(), services, a.ManufacturerData())

    log.Debug().
      Str("Addr", addr).
      Str("Name", a.LocalName()).
      Bool("Connectable", a.Connectable()).
      Strs("Services", services).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received device advertisement")
  })

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  addrs := maps.Keys(devices)
  sort.Strings(addrs)

  for _, addr := range addrs {
    data := devices[addr]

    ev := log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Bool("Connectable", data.connectable).
      Strs("Services", data.serviceList())

    if data.isAirthings {
      ev.
        Uint32("AirthingsSerial", data.airthingsSerial).
        Msg("Found Airthings device (use -airthings addr=" + addr + ")")
    } else {
      ev.Msg("Found device")
    }
  }
}
