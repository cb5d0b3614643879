package airthings

import (
  "encoding/json"
  "fmt"
  "sort"
  "strconv"
  "strings"

  "golang.org/x/exp/maps"
)

// Value is a decoded reading: a number for measurements, text for the device clock.
type Value struct {
  Number float64
  Text   string
  IsText bool
}

func Number(v float64) Value {
  return Value{Number: v}
}

func Text(s string) Value {
  return Value{Text: s, IsText: true}
}

func (v Value) String() string {
  if v.IsText {
    return v.Text
  }

  return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
  if v.IsText {
    return json.Marshal(v.Text)
  }

  return json.Marshal(v.Number)
}

// Readings maps sensor names to their latest values. A snapshot is replaced as a whole on every
// successful scan, never updated in place.
type Readings map[string]Value

func (r Readings) String() string {
  keys := maps.Keys(r)
  sort.Strings(keys)

  fields := make([]string, len(keys))

  for i, k := range keys {
    fields[i] = fmt.Sprintf("%s=%v", k, r[k])
  }

  return fmt.Sprintf("Readings[%v]", strings.Join(fields, ","))
}
