package protocol

import (
	"encoding/binary"
	"fmt"
)

// Legacy packed layout: 21-byte blocks of seven 3-byte sub-records
const (
	LegacyBlockSize       = 21
	LegacyRecordSize      = 3
	LegacyRecordsPerBlock = LegacyBlockSize / LegacyRecordSize
)

// Current aligned layout: one event per block
const (
	CurrentBlockSize   = 18
	currentSentinelLen = 17
)

// HistoryEntry is one decoded history record.
//
// Current-layout entries carry the event number and flip timestamp. Legacy entries
// have neither; they are numbered by position and keep the raw sub-record in Original.
type HistoryEntry struct {
	EventNumber uint32 `json:"event_number"`
	Facet       uint8  `json:"facet"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
	Original    []byte `json:"original,omitempty"`
	Duration    uint64 `json:"duration_seconds"`
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsLegacySentinel reports whether block terminates a legacy read-out
func IsLegacySentinel(block []byte) bool {
	return len(block) == LegacyBlockSize && allZero(block)
}

// LegacyCount returns the number of valid sub-records announced by the first block
func LegacyCount(block []byte) (int, error) {
	if len(block) < 2 {
		return 0, shortResponse("legacy history count", len(block), 2)
	}
	return int(binary.BigEndian.Uint16(block[:2])), nil
}

// DecodeLegacyRecord unpacks a 3-byte sub-record. The top six bits of byte 2 hold
// the facet; the group is then read as a big-endian duration with those bits cleared.
func DecodeLegacyRecord(rec []byte) (facet uint8, duration uint32, err error) {
	if len(rec) < LegacyRecordSize {
		return 0, 0, shortResponse("legacy history record", len(rec), LegacyRecordSize)
	}
	facet = rec[2] >> 2
	duration = uint32(rec[0])<<16 | uint32(rec[1])<<8 | uint32(rec[2]&0x03)
	return facet, duration, nil
}

// DecodeLegacyBlock decodes every sub-record of a non-sentinel block.
// firstEvent numbers the returned entries sequentially.
func DecodeLegacyBlock(block []byte, firstEvent uint32) ([]HistoryEntry, error) {
	if len(block) != LegacyBlockSize {
		return nil, fmt.Errorf("legacy history block: got %d bytes, want %d: %w", len(block), LegacyBlockSize, ErrInvalidLength)
	}

	entries := make([]HistoryEntry, 0, LegacyRecordsPerBlock)
	for i := 0; i < LegacyRecordsPerBlock; i++ {
		rec := block[i*LegacyRecordSize : (i+1)*LegacyRecordSize]
		facet, duration, err := DecodeLegacyRecord(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			EventNumber: firstEvent + uint32(i),
			Facet:       facet,
			Original:    append([]byte(nil), rec...),
			Duration:    uint64(duration),
		})
	}
	return entries, nil
}

// LegacyAccumulator collects a legacy read-out block by block and truncates it
// to the count announced by the first block.
type LegacyAccumulator struct {
	entries []HistoryEntry
	count   int
	blocks  int
	done    bool
}

// Feed consumes one block and reports whether the read-out is complete.
func (a *LegacyAccumulator) Feed(block []byte) (bool, error) {
	if a.done {
		return true, nil
	}
	if IsLegacySentinel(block) {
		a.done = true
		return true, nil
	}

	entries, err := DecodeLegacyBlock(block, uint32(a.blocks*LegacyRecordsPerBlock))
	if err != nil {
		return false, err
	}
	if a.blocks == 0 {
		// the count overlaps the first sub-record
		if a.count, err = LegacyCount(block); err != nil {
			return false, err
		}
	}
	a.blocks++
	a.entries = append(a.entries, entries...)
	return false, nil
}

// Done reports whether the sentinel block was seen
func (a *LegacyAccumulator) Done() bool { return a.done }

// Entries returns the decoded entries, truncated to the announced count
func (a *LegacyAccumulator) Entries() []HistoryEntry {
	if a.count < len(a.entries) {
		return a.entries[:a.count]
	}
	return a.entries
}

// IsCurrentSentinel reports whether block terminates an aligned read-out
func IsCurrentSentinel(block []byte) bool {
	return len(block) >= currentSentinelLen && allZero(block[:currentSentinelLen])
}

// DecodeCurrentBlock decodes an aligned history block. The duration field is
// little-endian while every other field is big-endian; both are kept as the device sends them.
func DecodeCurrentBlock(block []byte) (HistoryEntry, error) {
	if len(block) < CurrentBlockSize {
		return HistoryEntry{}, shortResponse("history block", len(block), CurrentBlockSize)
	}

	var duration uint64
	for i := CurrentBlockSize - 1; i >= 13; i-- {
		duration = duration<<8 | uint64(block[i])
	}

	return HistoryEntry{
		EventNumber: binary.BigEndian.Uint32(block[0:4]),
		Facet:       block[4],
		Timestamp:   binary.BigEndian.Uint64(block[5:13]),
		Duration:    duration,
	}, nil
}
