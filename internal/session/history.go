package session

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/protocol"
)

// maxLegacyBlocks bounds a legacy read-out: the 16-bit count fits in this many blocks,
// plus the sentinel.
const maxLegacyBlocks = (1<<16)/protocol.LegacyRecordsPerBlock + 2

// HistoryReader yields history entries one by one. Next returns io.EOF after the
// last entry; a reader cannot be restarted, a fresh History call starts a new read-out.
type HistoryReader interface {
	Next(ctx context.Context) (protocol.HistoryEntry, error)
}

// CollectHistory drains r
func CollectHistory(ctx context.Context, r HistoryReader) ([]protocol.HistoryEntry, error) {
	var entries []protocol.HistoryEntry
	for {
		entry, err := r.Next(ctx)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
}

// alignedHistory performs one history_data round-trip per entry
type alignedHistory struct {
	session *DeviceSession
	next    uint32
	done    bool
}

func (h *alignedHistory) Next(ctx context.Context) (protocol.HistoryEntry, error) {
	if h.done {
		return protocol.HistoryEntry{}, io.EOF
	}
	if err := h.session.requireLogin(); err != nil {
		return protocol.HistoryEntry{}, err
	}

	s := h.session
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.write(ctx, protocol.CharHistoryData, protocol.HistoryRequest(h.next)); err != nil {
		return protocol.HistoryEntry{}, err
	}
	block, err := s.read(ctx, protocol.CharHistoryData)
	if err != nil {
		return protocol.HistoryEntry{}, err
	}

	if protocol.IsCurrentSentinel(block) {
		h.done = true
		s.logger.WithField("entries", h.next).Debug("History read-out complete")
		return protocol.HistoryEntry{}, io.EOF
	}
	entry, err := protocol.DecodeCurrentBlock(block)
	if err != nil {
		h.done = true
		return protocol.HistoryEntry{}, protocolResponseError(err)
	}
	h.next++
	return entry, nil
}

// packedHistory reads the whole legacy stream on the first Next, since the device
// only announces the valid count in the first block and interleaving other commands
// would restart the read-out.
type packedHistory struct {
	session *DeviceSession
	entries []protocol.HistoryEntry
	loaded  bool
	pos     int
}

func (h *packedHistory) Next(ctx context.Context) (protocol.HistoryEntry, error) {
	if !h.loaded {
		entries, err := h.session.readPackedHistory(ctx)
		if err != nil {
			return protocol.HistoryEntry{}, err
		}
		h.entries = entries
		h.loaded = true
	}
	if h.pos >= len(h.entries) {
		return protocol.HistoryEntry{}, io.EOF
	}
	entry := h.entries[h.pos]
	h.pos++
	return entry, nil
}

func (s *DeviceSession) readPackedHistory(ctx context.Context) ([]protocol.HistoryEntry, error) {
	if err := s.requireLogin(); err != nil {
		return nil, err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	ok, err := s.writeCommand(ctx, protocol.HistoryFrame(), true)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("History command not acknowledged, reading result anyway")
	}

	var acc protocol.LegacyAccumulator
	for blocks := 0; blocks < maxLegacyBlocks; blocks++ {
		block, err := s.readUntrimmed(ctx, protocol.CharCommandResult)
		if err != nil {
			return nil, err
		}
		done, err := acc.Feed(block)
		if err != nil {
			return nil, protocolResponseError(err)
		}
		if done {
			entries := acc.Entries()
			s.logger.WithFields(logrus.Fields{
				"blocks":  blocks + 1,
				"entries": len(entries),
			}).Debug("Legacy history read-out complete")
			return entries, nil
		}
	}
	return nil, &protocol.CommandError{Frame: protocol.HistoryFrame()}
}
