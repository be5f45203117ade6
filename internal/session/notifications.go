package session

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/protocol"
)

// EventCallback receives raw event_data blocks
type EventCallback func(block []byte)

// HistoryCallback receives history entries pushed on history_data
type HistoryCallback func(entry protocol.HistoryEntry)

// RegisterFacetNotification subscribes to facet changes. The cached facet is updated
// before onFacet runs, and independently of it; onFacet receives the facet carried by
// each notification, in arrival order. onFacet may be nil.
func (s *DeviceSession) RegisterFacetNotification(ctx context.Context, onFacet FacetCallback) error {
	if err := s.requireLogin(); err != nil {
		return err
	}

	var deliver func([]byte)
	if onFacet != nil {
		deliver = func(data []byte) {
			if facet, err := protocol.DecodeFacet(data); err == nil {
				onFacet(facet)
			}
		}
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.router.register(ctx, ChannelFacet, s.onFacetPayload, deliver)
}

func (s *DeviceSession) onFacetPayload(data []byte) {
	facet, err := protocol.DecodeFacet(data)
	if err != nil {
		s.logger.WithError(err).Warn("Ignoring malformed facet notification")
		return
	}
	s.setFacet(facet)
	s.logger.WithField("facet", facet).Debug("Facet notification")
}

// UnregisterFacetNotification stops facet notifications
func (s *DeviceSession) UnregisterFacetNotification(ctx context.Context) error {
	return s.unregister(ctx, ChannelFacet)
}

// RegisterEventNotification subscribes to event_data blocks.
func (s *DeviceSession) RegisterEventNotification(ctx context.Context, onEvent EventCallback) error {
	if err := s.requireLogin(); err != nil {
		return err
	}

	var deliver func([]byte)
	if onEvent != nil {
		deliver = func(block []byte) { onEvent(block) }
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.router.register(ctx, ChannelEvent, nil, deliver)
}

// UnregisterEventNotification stops event notifications
func (s *DeviceSession) UnregisterEventNotification(ctx context.Context) error {
	return s.unregister(ctx, ChannelEvent)
}

// RegisterHistoryNotification subscribes to history_data and decodes each payload
// with the aligned layout. Sentinel and malformed payloads are not delivered.
func (s *DeviceSession) RegisterHistoryNotification(ctx context.Context, onEntry HistoryCallback) error {
	if err := s.requireLogin(); err != nil {
		return err
	}

	var deliver func([]byte)
	if onEntry != nil {
		deliver = func(block []byte) {
			if protocol.IsCurrentSentinel(block) {
				return
			}
			entry, err := protocol.DecodeCurrentBlock(block)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"bytes": len(block),
					"error": err,
				}).Warn("Ignoring malformed history notification")
				return
			}
			onEntry(entry)
		}
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.router.register(ctx, ChannelHistory, nil, deliver)
}

// UnregisterHistoryNotification stops history notifications
func (s *DeviceSession) UnregisterHistoryNotification(ctx context.Context) error {
	return s.unregister(ctx, ChannelHistory)
}

func (s *DeviceSession) unregister(ctx context.Context, ch Channel) error {
	if err := s.requireConnection(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.router.unregister(ctx, ch)
}

// ActiveNotifications returns the subscribed channels in sorted order
func (s *DeviceSession) ActiveNotifications() []Channel {
	return s.router.channels()
}
