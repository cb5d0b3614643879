package airthings

import (
  "encoding/binary"

  "github.com/pkg/errors"
  "github.com/robertof/home-adapters/ble"
  "github.com/robertof/home-adapters/device"
  "github.com/rs/zerolog/log"
)

const (
  // 4 uint8 fields followed by 8 uint16 fields.
  plusPayloadSize = 4 + 8 * 2
  plusFieldCount = 12
  plusPayloadVersion = 1
)

// decoder reads and decodes a full snapshot from a connected device.
type decoder interface {
  Sensors() []Sensor
  Decode(p Peripheral) (Readings, error)
}

type standardDecoder struct {
  sensors []Sensor
}

func (d standardDecoder) Sensors() []Sensor {
  return d.sensors
}

func (d standardDecoder) Decode(p Peripheral) (Readings, error) {
  readings := make(Readings, len(d.sensors))

  for _, sensor := range d.sensors {
    data, err := p.Read(sensor.UUID)

    if errors.Is(err, ble.ErrReadNotPerm) {
      log.Debug().Str("Sensor", sensor.Name).Msg("airthings: characteristic not readable, skipping")
      continue
    }

    if err != nil {
      return nil, err
    }

    if data == nil {
      continue
    }

    value, err := sensor.Decode(data)

    if err != nil {
      return nil, err
    }

    readings[sensor.Name] = value
  }

  return readings, nil
}

type plusFields [plusFieldCount]uint16

func decodePlusPayload(data []byte) (f plusFields, err error) {
  if len(data) != plusPayloadSize {
    return f, errors.Wrapf(device.ErrInvalidData,
      "airthings: plus payload has %d bytes, want %d", len(data), plusPayloadSize)
  }

  for i := 0; i < 4; i += 1 {
    f[i] = uint16(data[i])
  }

  for i := 4; i < plusFieldCount; i += 1 {
    offset := 4 + (i - 4) * 2
    f[i] = binary.LittleEndian.Uint16(data[offset:])
  }

  return f, nil
}

type plusDecoder struct {
  sensors []Sensor
}

func newPlusDecoder(sensors []Sensor) plusDecoder {
  for _, s := range sensors {
    if s.Index < 0 || s.Index >= plusFieldCount {
      panic("airthings: plus sensor " + s.Name + " has out of range field index")
    }
  }

  return plusDecoder{sensors: sensors}
}

func (d plusDecoder) Sensors() []Sensor {
  return d.sensors
}

func (d plusDecoder) Decode(p Peripheral) (Readings, error) {
  data, err := p.Read(uuidPlusCurrentValues)

  if err != nil {
    return nil, err
  }

  fields, err := decodePlusPayload(data)

  if err != nil {
    return nil, err
  }

  return d.decodeFields(fields), nil
}

func (d plusDecoder) decodeFields(fields plusFields) Readings {
  if fields[0] != plusPayloadVersion {
    // keep going: the layout has been stable across the firmware versions seen so far.
    log.Error().
      Uint16("Version", fields[0]).
      Interface("Fields", fields).
      Msg("airthings: unexpected plus payload version")
  }

  readings := make(Readings, len(d.sensors))

  for _, sensor := range d.sensors {
    readings[sensor.Name] = Number(sensor.Scaled(float64(fields[sensor.Index])))
  }

  return readings
}
