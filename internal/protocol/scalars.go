package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// accelerometer full scale: 2G over a signed 16-bit range
const accelerometerDivider = 1 << 14

// LegacyFirmwareThreshold is the first firmware version using the current operation set
const LegacyFirmwareThreshold = 3.47

// firmware revisions look like "FW_v3.50"
const (
	firmwareVersionOffset = 4
	firmwareVersionWidth  = 4
)

// DecodeBattery returns the battery level in percent
func DecodeBattery(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, shortResponse("battery level", len(data), 1)
	}
	return int(data[0]), nil
}

// DecodeFacet interprets a facet read or notification as a big-endian integer
func DecodeFacet(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, shortResponse("facet", 0, 1)
	}
	v := 0
	for _, b := range data {
		v = v<<8 | int(b)
	}
	return v, nil
}

// DecodeASCII decodes a NUL-padded ASCII string characteristic
func DecodeASCII(data []byte) string {
	return string(bytes.TrimRight(data, "\x00"))
}

// DecodeUint32 decodes a 4-byte big-endian characteristic such as calibration_version
func DecodeUint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, shortResponse("uint32", len(data), 4)
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

// Vector is an acceleration vector
type Vector struct {
	X, Y, Z float64
}

// DecodeAccelerometer decodes three little-endian int16 values, unlike the rest of
// the protocol, scaled to G and multiplied by multiplier.
func DecodeAccelerometer(data []byte, multiplier float64) (Vector, error) {
	if len(data) < 6 {
		return Vector{}, shortResponse("accelerometer", len(data), 6)
	}
	axis := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(data[i:]))) / accelerometerDivider * multiplier
	}
	return Vector{X: axis(0), Y: axis(2), Z: axis(4)}, nil
}

// ParseFirmwareVersion extracts the numeric version from a firmware revision string.
func ParseFirmwareVersion(revision string) (float64, error) {
	revision = strings.TrimRight(revision, "\x00 ")
	if len(revision) <= firmwareVersionOffset {
		return 0, fmt.Errorf("firmware revision %q too short", revision)
	}
	end := firmwareVersionOffset + firmwareVersionWidth
	if end > len(revision) {
		end = len(revision)
	}
	v, err := strconv.ParseFloat(revision[firmwareVersionOffset:end], 64)
	if err != nil {
		return 0, fmt.Errorf("firmware revision %q: %w", revision, err)
	}
	return v, nil
}

// EncodeCalibrationVersion encodes a calibration version as 4 big-endian bytes
func EncodeCalibrationVersion(version int64) ([]byte, error) {
	if err := checkRange("calibration version", version, 0, math.MaxUint32); err != nil {
		return nil, err
	}
	return be32(uint32(version)), nil
}
