package airthings

import (
  "context"
  "errors"
  "net"
  "reflect"
  "testing"
  "time"
)

// FakeConnector hands out peripherals from a script, one per Connect() call. A nil entry
// simulates a connection failure.
type FakeConnector struct {
  script []*FakePeripheral
  connects int
  connected []*FakePeripheral
}

var errConnectFailed = errors.New("connection refused")

func (f *FakeConnector) Connect(ctx context.Context, addr net.HardwareAddr) (Peripheral, error) {
  i := f.connects
  f.connects += 1

  if i >= len(f.script) {
    i = len(f.script) - 1
  }

  p := f.script[i]

  if p == nil {
    return nil, errConnectFailed
  }

  f.connected = append(f.connected, p)

  return p, nil
}

type fakeClock struct {
  t time.Time
}

func (c *fakeClock) Now() time.Time {
  return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
  c.t = c.t.Add(d)
}

func plusPeripheral(fields [12]uint16) *FakePeripheral {
  return &FakePeripheral{
    values: map[string][]byte{
      uuidPlusCurrentValues.String(): plusPayload(fields),
    },
  }
}

func brokenPeripheral() *FakePeripheral {
  return &FakePeripheral{
    values: map[string][]byte{
      uuidPlusCurrentValues.String(): {0x01, 0x02},
    },
  }
}

func newTestWave(t *testing.T, connector Connector, retries int) (*Wave, *fakeClock, *[]time.Duration) {
  t.Helper()

  w, err := New(Config{
    Addr: "00:11:22:33:44:55",
    Plus: true,
    ScanInterval: 5 * time.Minute,
    RetryCount: &retries,
  }, connector)

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
  var sleeps []time.Duration

  w.now = clock.Now
  w.sleep = func(ctx context.Context, d time.Duration) error {
    sleeps = append(sleeps, d)
    return nil
  }

  return w, clock, &sleeps
}

func TestWave_Defaults(t *testing.T) {
  w, err := New(Config{Addr: "00:11:22:33:44:55"}, &FakeConnector{})

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  if w.Name() != "airthings-001122334455" {
    t.Errorf("Name(): got %q", w.Name())
  }

  if w.Variant() != VariantStandard || len(w.Sensors()) != 4 {
    t.Errorf("got variant %v with %d sensors, wanted Standard with 4", w.Variant(), len(w.Sensors()))
  }

  if w.retryCount != DefaultRetryCount || w.retryDelay != DefaultRetryDelay || w.scanInterval != DefaultScanInterval {
    t.Errorf("unexpected defaults: retries=%v delay=%v interval=%v", w.retryCount, w.retryDelay, w.scanInterval)
  }

  if got := w.EntityID(SensorCO2); got != "00:11:22:33:44:55-co2" {
    t.Errorf("EntityID(): got %q", got)
  }
}

func TestWave_InvalidAddr(t *testing.T) {
  if _, err := New(Config{Addr: "not-a-mac"}, &FakeConnector{}); err == nil {
    t.Fatalf("New() with invalid address: got no error")
  }
}

func TestWave_CachesWithinScanInterval(t *testing.T) {
  connector := &FakeConnector{
    script: []*FakePeripheral{
      plusPeripheral([12]uint16{1, 80, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0}),
      plusPeripheral([12]uint16{1, 90, 0, 0, 200, 0, 0, 0, 0, 0, 0, 0}),
    },
  }

  w, clock, _ := newTestWave(t, connector, 3)
  ctx := context.Background()

  first := w.Readings(ctx)

  clock.Advance(4 * time.Minute)
  second := w.Readings(ctx)

  if connector.connects != 1 {
    t.Fatalf("got %d connections within the scan interval, wanted 1", connector.connects)
  }

  if !reflect.DeepEqual(first, second) {
    t.Fatalf("cached Readings(): got %v, wanted %v", second, first)
  }

  clock.Advance(time.Minute)
  third := w.Readings(ctx)

  if connector.connects != 2 {
    t.Fatalf("got %d connections after the scan interval, wanted 2", connector.connects)
  }

  if third[SensorRadon1DayAvg] != Number(200) {
    t.Fatalf("Readings() after scan interval: got %v, wanted fresh data", third)
  }
}

func TestWave_KeepsPreviousSnapshotWhenRetriesAreExhausted(t *testing.T) {
  good := plusPeripheral([12]uint16{1, 80, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0})
  connector := &FakeConnector{
    script: []*FakePeripheral{good, nil, brokenPeripheral(), nil, brokenPeripheral()},
  }

  w, clock, sleeps := newTestWave(t, connector, 3)
  ctx := context.Background()

  want := w.Readings(ctx)

  clock.Advance(10 * time.Minute)
  got := w.Readings(ctx)

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Readings() after failures: got %v, wanted previous snapshot %v", got, want)
  }

  if connector.connects != 5 {
    t.Fatalf("got %d connection attempts, wanted 1 + 1 initial + 3 retries", connector.connects)
  }

  if len(*sleeps) != 3 {
    t.Fatalf("got %d sleeps between attempts, wanted 3", len(*sleeps))
  }

  for _, d := range *sleeps {
    if d != DefaultRetryDelay {
      t.Fatalf("got sleep of %v, wanted %v", d, DefaultRetryDelay)
    }
  }

  _, collectedAt := w.Latest()
  if !collectedAt.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
    t.Fatalf("Latest(): collection time moved to %v after a failed scan", collectedAt)
  }
}

func TestWave_FirstEverFailureReturnsEmptySnapshot(t *testing.T) {
  connector := &FakeConnector{script: []*FakePeripheral{nil}}

  w, _, _ := newTestWave(t, connector, 2)

  got := w.Readings(context.Background())

  if len(got) != 0 {
    t.Fatalf("Readings(): got %v, wanted empty snapshot", got)
  }

  if connector.connects != 3 {
    t.Fatalf("got %d connection attempts, wanted 3", connector.connects)
  }
}

func TestWave_RecoversOnRetry(t *testing.T) {
  connector := &FakeConnector{
    script: []*FakePeripheral{
      nil,
      brokenPeripheral(),
      plusPeripheral([12]uint16{1, 80, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0}),
    },
  }

  w, _, sleeps := newTestWave(t, connector, 3)

  got := w.Readings(context.Background())

  if got[SensorHumidity] != Number(40) {
    t.Fatalf("Readings(): got %v, wanted humidity=40", got)
  }

  if connector.connects != 3 || len(*sleeps) != 2 {
    t.Fatalf("got %d attempts and %d sleeps, wanted 3 and 2", connector.connects, len(*sleeps))
  }
}

func TestWave_AlwaysDisconnects(t *testing.T) {
  connector := &FakeConnector{
    script: []*FakePeripheral{
      brokenPeripheral(),
      {errs: map[string]error{uuidPlusCurrentValues.String(): errors.New("att: timeout")}},
      plusPeripheral([12]uint16{1, 80, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0}),
    },
  }

  w, _, _ := newTestWave(t, connector, 3)
  w.Readings(context.Background())

  if len(connector.connected) != 3 {
    t.Fatalf("got %d connections, wanted 3", len(connector.connected))
  }

  for i, p := range connector.connected {
    if p.disconnects != 1 {
      t.Errorf("connection %d: got %d disconnects, wanted 1", i, p.disconnects)
    }
  }
}

func TestWave_ZeroRetries(t *testing.T) {
  connector := &FakeConnector{script: []*FakePeripheral{nil}}

  w, _, sleeps := newTestWave(t, connector, 0)
  w.Readings(context.Background())

  if connector.connects != 1 || len(*sleeps) != 0 {
    t.Fatalf("got %d attempts and %d sleeps, wanted 1 and 0", connector.connects, len(*sleeps))
  }
}

func TestWave_CanceledContextStopsRetrying(t *testing.T) {
  connector := &FakeConnector{script: []*FakePeripheral{nil}}

  w, _, _ := newTestWave(t, connector, 3)
  w.sleep = sleepContext

  ctx, cancel := context.WithCancel(context.Background())
  cancel()

  w.Readings(ctx)

  if connector.connects != 1 {
    t.Fatalf("got %d attempts with a canceled context, wanted 1", connector.connects)
  }
}

func TestWave_CollectReportsFailedScan(t *testing.T) {
  good := plusPeripheral([12]uint16{1, 80, 0, 0, 100, 0, 0, 0, 0, 0, 0, 0})
  connector := &FakeConnector{script: []*FakePeripheral{good, brokenPeripheral(), nil}}

  w, clock, _ := newTestWave(t, connector, 1)
  ctx := context.Background()

  if err := w.Collect(ctx); err != nil {
    t.Fatalf("Collect() on a working device: got error %v", err)
  }

  want, _ := w.Latest()

  // cached within the scan interval, the device is not contacted.
  clock.Advance(time.Minute)

  if err := w.Collect(ctx); err != nil || connector.connects != 1 {
    t.Fatalf("Collect() within scan interval: got %v after %d connects", err, connector.connects)
  }

  clock.Advance(10 * time.Minute)
  err := w.Collect(ctx)

  if !errors.Is(err, ErrScanFailed) || !errors.Is(err, errConnectFailed) {
    t.Fatalf("Collect() after exhausted retries: got %v, wanted %v wrapping the last failure", err, ErrScanFailed)
  }

  if got, _ := w.Latest(); !reflect.DeepEqual(got, want) {
    t.Fatalf("Latest() after failed collection: got %v, wanted previous snapshot %v", got, want)
  }
}
