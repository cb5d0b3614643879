package device

import (
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/rs/zerolog/log"
)

// DeviceSpec is a device definition given on the command line in the form `key=value,key=value`.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}

func (ds DeviceSpec) Bool(key string, def bool) (bool, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  switch strings.ToLower(v) {
  case "yes", "y", "on":
    return true, nil
  case "no", "n", "off":
    return false, nil
  }

  b, err := strconv.ParseBool(v)
  if err != nil {
    return def, fmt.Errorf("invalid value for %q: %w", key, err)
  }

  return b, nil
}

func (ds DeviceSpec) Int(key string, def int) (int, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  i, err := strconv.Atoi(v)
  if err != nil {
    return def, fmt.Errorf("invalid value for %q: %w", key, err)
  }

  return i, nil
}

func (ds DeviceSpec) Duration(key string, def time.Duration) (time.Duration, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  d, err := time.ParseDuration(v)
  if err != nil {
    return def, fmt.Errorf("invalid value for %q: %w", key, err)
  }

  return d, nil
}
