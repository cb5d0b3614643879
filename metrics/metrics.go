package metrics

import (
  "strconv"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/home-adapters/adax"
  "github.com/robertof/home-adapters/airthings"
)

var (
  descAirthingsSensor = prometheus.NewDesc(
    "airthings_sensor_value",
    "Value reported by an Airthings Wave sensor, in the unit given by the unit label.",
    []string{"device", "sensor", "unit"},
    nil,
  )

  descRoomTemperature = prometheus.NewDesc(
    "adax_room_temperature_celsius",
    "Current temperature of an Adax room in Celsius.",
    []string{"home_id", "room_id", "name"},
    nil,
  )

  descRoomTargetTemperature = prometheus.NewDesc(
    "adax_room_target_temperature_celsius",
    "Target temperature of an Adax room in Celsius.",
    []string{"home_id", "room_id", "name"},
    nil,
  )
)

// Wave is the read side of an Airthings device.
type Wave interface {
  Name() string
  Sensors() []airthings.Sensor
  Latest() (airthings.Readings, time.Time)
}

type airthingsCollector struct {
  waves []Wave
}

func (c *airthingsCollector) Describe(ch chan<- *prometheus.Desc) {
  ch <- descAirthingsSensor
}

func (c *airthingsCollector) Collect(ch chan<- prometheus.Metric) {
  for _, wave := range c.waves {
    readings, ts := wave.Latest()

    if len(readings) == 0 {
      // never read successfully.
      continue
    }

    for _, sensor := range wave.Sensors() {
      value, ok := readings[sensor.Name]

      if !ok || value.IsText {
        continue
      }

      m := prometheus.MustNewConstMetric(
        descAirthingsSensor,
        prometheus.GaugeValue,
        value.Number,
        wave.Name(),
        sensor.Name,
        sensor.Unit,
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, m)
    }
  }
}

func RegisterAirthings(reg prometheus.Registerer, waves ...Wave) {
  reg.MustRegister(&airthingsCollector{waves})
}

// Rooms is the read side of an Adax account. Latest must not block on the network.
type Rooms interface {
  Latest() []adax.Room
}

type adaxCollector struct {
  Rooms
}

func (c *adaxCollector) Describe(ch chan<- *prometheus.Desc) {
  ch <- descRoomTemperature
  ch <- descRoomTargetTemperature
}

func (c *adaxCollector) Collect(ch chan<- prometheus.Metric) {
  for _, room := range c.Latest() {
    labels := []string{strconv.Itoa(room.HomeID), strconv.Itoa(room.ID), room.Name}

    ch <- prometheus.MustNewConstMetric(
      descRoomTemperature,
      prometheus.GaugeValue,
      room.Temperature,
      labels...,
    )

    ch <- prometheus.MustNewConstMetric(
      descRoomTargetTemperature,
      prometheus.GaugeValue,
      room.TargetTemperature,
      labels...,
    )
  }
}

func RegisterAdax(reg prometheus.Registerer, rooms Rooms) {
  reg.MustRegister(&adaxCollector{rooms})
}

// RegisterNetgear exports the time of the last successful reboot, 0 if there was none.
func RegisterNetgear(reg prometheus.Registerer, lastTrigger func() time.Time) {
  reg.MustRegister(prometheus.NewGaugeFunc(
    prometheus.GaugeOpts{
      Name: "netgear_last_reboot_timestamp_seconds",
      Help: "Unix time of the last successful router reboot.",
    },
    func() float64 {
      t := lastTrigger()

      if t.IsZero() {
        return 0
      }

      return float64(t.UnixNano()) / 1e9
    },
  ))
}
