package airthings

import (
  "context"
  "errors"
  "fmt"
  "net"
  "strconv"
  "sync"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
)

// ErrScanFailed is reported by Collect when every attempt of a due scan failed.
var ErrScanFailed = errors.New("airthings: scan failed")

type Variant uint8

const (
  VariantStandard Variant = iota
  VariantPlus
)

func (v Variant) String() string {
  switch v {
  case VariantStandard:
    return "Standard"
  case VariantPlus:
    return "Plus"
  default:
    panic("unknown variant: " + strconv.Itoa(int(v)))
  }
}

// Wave reads an Airthings Wave over BLE. A full connect/read/disconnect cycle runs at most once per
// scan interval; in between, and whenever a cycle fails for good, the previous snapshot is returned.
type Wave struct {
  name string
  addr net.HardwareAddr
  variant Variant
  decoder decoder
  connector Connector

  scanInterval time.Duration
  retryCount int
  retryDelay time.Duration

  now func() time.Time
  sleep func(ctx context.Context, d time.Duration) error

  // serializes scans, held across the whole retry loop.
  scanMu sync.Mutex

  mu sync.Mutex
  readings Readings
  collectionTime time.Time
  lastScan time.Time
}

func New(cfg Config, connector Connector) (*Wave, error) {
  cfg = cfg.withDefaults()

  addr, err := cfg.hardwareAddr()
  if err != nil {
    return nil, err
  }

  w := &Wave{
    name: cfg.Name,
    addr: addr,
    connector: connector,
    scanInterval: cfg.ScanInterval,
    retryCount: *cfg.RetryCount,
    retryDelay: cfg.RetryDelay,
    now: time.Now,
    sleep: sleepContext,
    readings: Readings{},
  }

  if cfg.Plus {
    w.variant = VariantPlus
    w.decoder = newPlusDecoder(plusSensors())
  } else {
    w.variant = VariantStandard
    w.decoder = standardDecoder{sensors: standardSensors(cfg.DateTime)}
  }

  return w, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
  t := time.NewTimer(d)
  defer t.Stop()

  select {
  case <-ctx.Done():
    return ctx.Err()
  case <-t.C:
    return nil
  }
}

func (w *Wave) Name() string {
  return w.name
}

func (w *Wave) Addr() net.HardwareAddr {
  return w.addr
}

func (w *Wave) Variant() Variant {
  return w.variant
}

func (w *Wave) Sensors() []Sensor {
  return w.decoder.Sensors()
}

// EntityID is the identifier of a single sensor of this device, e.g. "00:11:22:33:44:55-co2".
func (w *Wave) EntityID(sensor string) string {
  return fmt.Sprintf("%s-%s", w.addr, sensor)
}

func (w *Wave) String() string {
  return fmt.Sprintf("airthings[name=%q, addr=%v, variant=%v]", w.name, w.addr, w.variant)
}

// Latest returns the last snapshot and when it was collected, without touching the device.
func (w *Wave) Latest() (Readings, time.Time) {
  w.mu.Lock()
  defer w.mu.Unlock()

  return maps.Clone(w.readings), w.collectionTime
}

func (w *Wave) scanDue() bool {
  w.mu.Lock()
  defer w.mu.Unlock()

  now := w.now()

  if !w.lastScan.IsZero() && now.Sub(w.lastScan) < w.scanInterval {
    return false
  }

  w.lastScan = now
  return true
}

func (w *Wave) update(r Readings) {
  w.mu.Lock()
  defer w.mu.Unlock()

  w.readings = r
  w.collectionTime = w.now()
}

// Readings returns the current snapshot, reading the device first if the scan interval has elapsed.
// Failures are logged and never returned: the caller gets the last good snapshot instead.
func (w *Wave) Readings(ctx context.Context) Readings {
  r, _ := w.refresh(ctx)
  return r
}

// Collect refreshes the snapshot like Readings does, reporting whether a due scan failed for good.
func (w *Wave) Collect(ctx context.Context) error {
  _, err := w.refresh(ctx)
  return err
}

func (w *Wave) refresh(ctx context.Context) (Readings, error) {
  w.scanMu.Lock()
  defer w.scanMu.Unlock()

  if !w.scanDue() {
    r, _ := w.Latest()
    return r, nil
  }

  log.Debug().Stringer("Device", w).Msg("airthings: reading from device")

  for attempt := 0; ; attempt += 1 {
    readings, err := w.scanOnce(ctx)

    if err == nil {
      log.Debug().Stringer("Device", w).Stringer("Readings", readings).Msg("airthings: scan complete")
      w.update(readings)

      return maps.Clone(readings), nil
    }

    retriesLeft := w.retryCount - attempt

    if retriesLeft <= 0 || ctx.Err() != nil {
      log.Error().
        Stringer("Device", w).
        Err(err).
        Int("Attempts", attempt + 1).
        Msg("airthings: communication failed, giving up and keeping previous readings")

      r, _ := w.Latest()
      return r, fmt.Errorf("%w after %d attempts: %w", ErrScanFailed, attempt + 1, err)
    }

    log.Warn().
      Stringer("Device", w).
      Err(err).
      Int("RetriesLeft", retriesLeft).
      Dur("Backoff", w.retryDelay).
      Msg("airthings: cannot read from device, retrying")

    if sleepErr := w.sleep(ctx, w.retryDelay); sleepErr != nil {
      log.Error().Stringer("Device", w).Err(sleepErr).Msg("airthings: retry aborted")

      r, _ := w.Latest()
      return r, fmt.Errorf("%w: retry aborted: %w", ErrScanFailed, err)
    }
  }
}

func (w *Wave) scanOnce(ctx context.Context) (Readings, error) {
  p, err := w.connector.Connect(ctx, w.addr)

  if err != nil {
    return nil, err
  }

  defer func() {
    if err := p.Disconnect(); err != nil {
      log.Warn().Stringer("Device", w).Err(err).Msg("airthings: error disconnecting from device")
    }
  }()

  return w.decoder.Decode(p)
}
