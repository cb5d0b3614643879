package airthings

import (
  "encoding/binary"
  "fmt"
  "math"
  "strconv"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/home-adapters/ble"
  "github.com/robertof/home-adapters/device"
)

// Format is the binary layout of a single characteristic value. All multi-byte values are
// little endian.
type Format uint8

const (
  FormatInt16 Format = iota
  FormatUint16
  // uint16 year, then month, day, hour, minute and second as uint8.
  FormatDateTime
)

func (f Format) Size() int {
  switch f {
  case FormatInt16, FormatUint16:
    return 2
  case FormatDateTime:
    return 7
  default:
    panic("unknown format: " + strconv.Itoa(int(f)))
  }
}

func (f Format) String() string {
  switch f {
  case FormatInt16:
    return "int16"
  case FormatUint16:
    return "uint16"
  case FormatDateTime:
    return "datetime"
  default:
    panic("unknown format: " + strconv.Itoa(int(f)))
  }
}

// Sensor describes how a single reading is sourced and decoded. Standard devices read one
// characteristic per sensor (UUID, Format); Plus devices pick field Index out of the combined
// payload.
type Sensor struct {
  Name        string
  UUID        ble.UUID
  Format      Format
  Index       int
  Scale       float64
  Unit        string
  DeviceClass string
  Icon        string
}

const (
  SensorDateTime          = "date_time"
  SensorTemperature       = "temperature"
  SensorHumidity          = "humidity"
  SensorRadon1DayAvg      = "radon_1day_avg"
  SensorRadonLongTermAvg  = "radon_longterm_avg"
  SensorPressure          = "pressure"
  SensorCO2               = "co2"
  SensorVOC               = "voc"
)

var (
  uuidDateTime         = ble.UUID16(0x2a08)
  uuidTemperature      = ble.UUID16(0x2a6e)
  uuidHumidity         = ble.UUID16(0x2a6f)
  uuidRadon1DayAvg     = ble.MustParseUUID("b42e01aa-ade7-11e4-89d3-123b93f75cba")
  uuidRadonLongTermAvg = ble.MustParseUUID("b42e0a4c-ade7-11e4-89d3-123b93f75cba")
  uuidPlusCurrentValues = ble.MustParseUUID("b42e2a68-ade7-11e4-89d3-123b93f75cba")
)

func standardSensors(withDateTime bool) []Sensor {
  sensors := []Sensor{
    {
      Name: SensorTemperature, UUID: uuidTemperature, Format: FormatInt16, Scale: 1.0 / 100,
      Unit: "ºC", DeviceClass: "temperature",
    },
    {
      Name: SensorHumidity, UUID: uuidHumidity, Format: FormatUint16, Scale: 1.0 / 100,
      Unit: "%", DeviceClass: "humidity",
    },
    {
      Name: SensorRadon1DayAvg, UUID: uuidRadon1DayAvg, Format: FormatUint16, Scale: 1.0,
      Unit: "Bq/m3", DeviceClass: "radon", Icon: "mdi:radioactive",
    },
    {
      Name: SensorRadonLongTermAvg, UUID: uuidRadonLongTermAvg, Format: FormatUint16, Scale: 1.0,
      Unit: "Bq/m3", DeviceClass: "radon", Icon: "mdi:radioactive",
    },
  }

  if withDateTime {
    sensors = append([]Sensor{{
      Name: SensorDateTime, UUID: uuidDateTime, Format: FormatDateTime, Unit: "time",
      DeviceClass: "timestamp",
    }}, sensors...)
  }

  return sensors
}

func plusSensors() []Sensor {
  return []Sensor{
    {Name: SensorHumidity, Index: 1, Scale: 1.0 / 2, Unit: "%", DeviceClass: "humidity"},
    {
      Name: SensorRadon1DayAvg, Index: 4, Scale: 1.0, Unit: "Bq/m3", DeviceClass: "radon",
      Icon: "mdi:radioactive",
    },
    {
      Name: SensorRadonLongTermAvg, Index: 5, Scale: 1.0, Unit: "Bq/m3", DeviceClass: "radon",
      Icon: "mdi:radioactive",
    },
    {Name: SensorTemperature, Index: 6, Scale: 1.0 / 100, Unit: "ºC", DeviceClass: "temperature"},
    {Name: SensorPressure, Index: 7, Scale: 1.0 / 50, Unit: "hPa", DeviceClass: "pressure"},
    {
      Name: SensorCO2, Index: 8, Scale: 1.0, Unit: "ppm", DeviceClass: "co2",
      Icon: "mdi:periodic-table-co2",
    },
    {Name: SensorVOC, Index: 9, Scale: 1.0, Unit: "ppb", DeviceClass: "voc", Icon: "mdi:cloud"},
  }
}

func round2(v float64) float64 {
  return math.Round(v * 100) / 100
}

// Scaled converts a raw integer into physical units, rounded to 2 decimal places.
func (s Sensor) Scaled(raw float64) float64 {
  return round2(raw * s.Scale)
}

// Decode a characteristic value read for this sensor.
func (s Sensor) Decode(data []byte) (Value, error) {
  if len(data) != s.Format.Size() {
    return Value{}, errors.Wrapf(device.ErrInvalidData,
      "sensor %s: got %d bytes, want %d for %v", s.Name, len(data), s.Format.Size(), s.Format)
  }

  bo := binary.LittleEndian

  switch s.Format {
  case FormatInt16:
    return Number(s.Scaled(float64(int16(bo.Uint16(data))))), nil
  case FormatUint16:
    return Number(s.Scaled(float64(bo.Uint16(data)))), nil
  case FormatDateTime:
    year := int(bo.Uint16(data))
    month, day, hour, minute, second := data[2], data[3], data[4], data[5], data[6]

    if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
      return Value{}, errors.Wrapf(device.ErrCorruptedData,
        "sensor %s: invalid date/time %x", s.Name, data)
    }

    t := time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)

    if t.Day() != int(day) {
      return Value{}, errors.Wrapf(device.ErrCorruptedData,
        "sensor %s: day %d out of range for %v %d", s.Name, day, time.Month(month), year)
    }

    return Text(t.Format(time.DateTime)), nil
  }

  return Value{}, fmt.Errorf("sensor %s: unsupported format %v", s.Name, s.Format)
}
