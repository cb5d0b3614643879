package adax

import (
  "fmt"
  "math"
  "strconv"
)

// Room is a heated room as reported by the Adax API. Temperatures are in degrees Celsius.
type Room struct {
  ID                int     `json:"id"`
  HomeID            int     `json:"homeId"`
  Name              string  `json:"name"`
  Temperature       float64 `json:"temperature"`
  TargetTemperature float64 `json:"targetTemperature"`
}

func (r Room) UniqueID() string {
  return fmt.Sprintf("%d_%d", r.HomeID, r.ID)
}

func (r Room) String() string {
  return fmt.Sprintf("room[id=%d, name=%q, temperature=%.2f, target=%.2f]",
    r.ID, r.Name, r.Temperature, r.TargetTemperature)
}

// wire format: temperatures in centidegrees.
type contentResponse struct {
  Rooms []struct {
    ID                int    `json:"id"`
    HomeID            int    `json:"homeId"`
    Name              string `json:"name"`
    Temperature       *int   `json:"temperature"`
    TargetTemperature int    `json:"targetTemperature"`
  } `json:"rooms"`
}

func (c contentResponse) toRooms() []Room {
  rooms := make([]Room, len(c.Rooms))

  for i, r := range c.Rooms {
    rooms[i] = Room{
      ID:                r.ID,
      HomeID:            r.HomeID,
      Name:              r.Name,
      TargetTemperature: fromCentidegrees(r.TargetTemperature),
    }

    if r.Temperature != nil {
      rooms[i].Temperature = fromCentidegrees(*r.Temperature)
    }
  }

  return rooms
}

type controlRequest struct {
  Rooms []roomControl `json:"rooms"`
}

type roomControl struct {
  ID                int    `json:"id"`
  TargetTemperature string `json:"targetTemperature"`
}

func fromCentidegrees(v int) float64 {
  return float64(v) / 100
}

// toCentidegrees rounds to the nearest hundredth of a degree, e.g. 21.5 => "2150".
func toCentidegrees(t float64) string {
  return strconv.FormatInt(int64(math.Round(t * 100)), 10)
}
