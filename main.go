package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robertof/home-adapters/adax"
	"github.com/robertof/home-adapters/airthings"
	"github.com/robertof/home-adapters/api"
	"github.com/robertof/home-adapters/ble"
	"github.com/robertof/home-adapters/collector"
	"github.com/robertof/home-adapters/homeassistant"
	"github.com/robertof/home-adapters/metrics"
	"github.com/robertof/home-adapters/netgear"
	"github.com/robertof/home-adapters/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Airthings", utils.StringerArray(cfg.Airthings)).
    Bool("Adax", cfg.Adax != nil).
    Bool("Netgear", cfg.Netgear != nil).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  registry := prometheus.NewRegistry()
  registry.MustRegister(
    collectors.NewGoCollector(),
    collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
  )
  collector.RegisterMetrics(registry)

  server := &api.Server{Gatherer: registry}
  coll := collector.NewRecurring()

  var sources []collector.Source

  if len(cfg.Airthings) > 0 {
    bleHandle := initBle(cfg)
    defer bleHandle.Stop()

    ble.RegisterMetrics(registry)

    waves := initWaves(cfg, bleHandle)
    metricWaves := make([]metrics.Wave, len(waves))

    for i, w := range waves {
      metricWaves[i] = w
      server.Waves = append(server.Waves, w)

      sources = append(sources, w)
    }

    metrics.RegisterAirthings(registry, metricWaves...)
  }

  if cfg.Adax != nil {
    client := adax.New(*cfg.Adax, nil)
    server.Rooms = client
    metrics.RegisterAdax(registry, client)

    sources = append(sources, collector.SourceFunc("adax", func(ctx context.Context) error {
      return client.Update(ctx, false)
    }))
  }

  var schedule *netgear.Schedule

  if cfg.Netgear != nil {
    rebooter, s := initNetgear(cfg)
    schedule = s
    server.Rebooter = rebooter

    netgear.RegisterMetrics(registry)
    metrics.RegisterNetgear(registry, rebooter.LastTrigger)
  }

  collectInitial(ctx, cfg, sources)

  for _, s := range sources {
    coll.Add(s, cfg.CollectionInterval)
  }

  eg, ctx := errgroup.WithContext(ctx)

  if len(sources) > 0 {
    eg.Go(func() error {
      return coll.Start(ctx)
    })
  }

  if schedule != nil {
    eg.Go(func() error {
      return schedule.Run(ctx)
    })
  }

  httpServer := &http.Server{
    Addr: cfg.BindAddress,
    Handler: server.Handler(),
    ReadHeaderTimeout: 10 * time.Second,
  }

  eg.Go(func() error {
    log.Info().
      Str("ListenAddress", cfg.BindAddress).
      Msg("Starting HTTP server")

    if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      return err
    }

    return nil
  })

  eg.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    return httpServer.Shutdown(shutdownCtx)
  })

  if err := eg.Wait(); err != nil {
    log.Fatal().Err(err).Msg("Unable to serve on requested address")
  }

  log.Info().Msg("Shut down")
}

func initBle(cfg config) *ble.Handle {
  var bleFlags ble.Flags = ble.FlagEnableDeviceAllowList
  deviceAddresses := make([]net.HardwareAddr, 0, len(cfg.Airthings))

  for _, dev := range cfg.Airthings {
    if addr, err := net.ParseMAC(dev.Addr); err == nil {
      deviceAddresses = append(deviceAddresses, addr)
    }
  }

  bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  err = bleHandle.SetAllowListedAddresses(deviceAddresses)

  if err != nil {
    log.Error().Err(err).Msg("Failed to set device allow list")
  }

  return bleHandle
}

func initWaves(cfg config, bleHandle *ble.Handle) []*airthings.Wave {
  connector := airthings.BLEConnector(bleHandle)
  waves := make([]*airthings.Wave, 0, len(cfg.Airthings))

  for _, devCfg := range cfg.Airthings {
    w, err := airthings.New(devCfg, connector)

    if err != nil {
      log.Fatal().Err(err).Stringer("Device", devCfg).Msg("Invalid Airthings device configuration")
    }

    waves = append(waves, w)
  }

  return waves
}

func initNetgear(cfg config) (*netgear.Rebooter, *netgear.Schedule) {
  ha := homeassistant.New(cfg.HomeAssistant, nil)

  presenceEntity := cfg.Netgear.PresenceEntity
  if presenceEntity == "" {
    presenceEntity = netgear.DefaultPresenceEntity
  }

  rebooter := netgear.NewRebooter(
    *cfg.Netgear,
    netgear.NewSOAPRouter(*cfg.Netgear, nil),
    netgear.HomeAssistantPresence(ha, presenceEntity),
  )

  schedule, err := netgear.NewSchedule(*cfg.Netgear, rebooter)

  if err != nil {
    log.Fatal().Err(err).Msg("Invalid netgear reboot schedule")
  }

  return rebooter, schedule
}

// collectInitial runs every source once before serving. Unlike scheduled collections a failure
// here is only reported, adapters keep serving their previous (empty) state.
func collectInitial(ctx context.Context, cfg config, sources []collector.Source) {
  if len(sources) == 0 {
    return
  }

  log.Info().
    Dur("TimeoutSec", cfg.InitialCollectionTimeout).
    Msg("Running initial collection for the configured sources")

  for _, result := range collector.CollectOnce(ctx, sources, cfg.InitialCollectionTimeout) {
    if result.Error != nil {
      log.Error().
        Stringer("Source", result.Source).
        Err(result.Error).
        Msg("Failed to collect from source")
    } else {
      log.Info().
        Stringer("Source", result.Source).
        Dur("Duration", result.Duration).
        Msg("Successfully collected from source")
    }
  }
}
