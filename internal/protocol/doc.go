// Package protocol implements the cube's GATT wire protocol without performing any I/O.
//
// It provides:
//   - the characteristic registry (names, UUIDs and per-access lengths)
//   - command frame builders and response parsers
//   - history decoders for the legacy bit-packed and the current byte-aligned layouts
//   - the protocol error taxonomy
//
// Multi-byte integers are big-endian except the current-layout history duration and
// the accelerometer vector, which the device sends little-endian.
package protocol
