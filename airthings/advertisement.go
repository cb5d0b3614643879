package airthings

import "encoding/binary"

// Bluetooth SIG company identifier assigned to Airthings AS.
const manufacturerID = 0x0334

// SerialNumber extracts the device serial number from Airthings manufacturer data, as broadcast
// in advertisements. ok is false for any other manufacturer.
func SerialNumber(manufacturerData []byte) (serial uint32, ok bool) {
  if len(manufacturerData) < 6 {
    return 0, false
  }

  if binary.LittleEndian.Uint16(manufacturerData) != manufacturerID {
    return 0, false
  }

  return binary.LittleEndian.Uint32(manufacturerData[2:]), true
}
