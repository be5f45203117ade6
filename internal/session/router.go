package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/flipcube/internal/groutine"
	"github.com/srg/flipcube/internal/protocol"
)

// Channel names a notification stream the session can subscribe to
type Channel string

const (
	ChannelFacet   Channel = "facet"
	ChannelEvent   Channel = "event"
	ChannelHistory Channel = "history"
)

var channelCharacteristics = map[Channel]string{
	ChannelFacet:   protocol.CharFacet,
	ChannelEvent:   protocol.CharEventData,
	ChannelHistory: protocol.CharHistoryData,
}

// notifyQueueCapacity bounds user callbacks waiting on the dispatch goroutine
const notifyQueueCapacity uint32 = 128

// Router owns the session's notification subscriptions.
//
// Payloads are handled in two steps: onPayload runs synchronously on the transport
// callback goroutine and must only update cached state; the user callback is posted
// to a single dispatch goroutine so it can never block the transport or interleave
// with a command round-trip on the callback goroutine.
type Router struct {
	transport Transport
	logger    *logrus.Logger
	active    *hashmap.Map[string, protocol.CharacteristicSpec]

	mu       sync.Mutex
	executor *groutine.Executor
}

func newRouter(transport Transport, logger *logrus.Logger) *Router {
	return &Router{
		transport: transport,
		logger:    logger,
		active:    hashmap.New[string, protocol.CharacteristicSpec](),
	}
}

func (r *Router) start(ctx context.Context) error {
	exec := groutine.NewExecutor("cube-notify-dispatch", notifyQueueCapacity)
	exec.OnPanic = func(name string, recovered any) {
		r.logger.WithFields(logrus.Fields{
			"goroutine": name,
			"panic":     recovered,
		}).Error("Notification callback panicked")
	}
	// the dispatcher outlives the connect call, so it does not inherit its deadline
	if err := exec.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	r.mu.Lock()
	r.executor = exec
	r.mu.Unlock()
	return nil
}

func (r *Router) stop() {
	r.mu.Lock()
	exec := r.executor
	r.executor = nil
	r.mu.Unlock()

	if exec != nil {
		exec.Stop()
	}
}

func (r *Router) post(job func()) {
	r.mu.Lock()
	exec := r.executor
	r.mu.Unlock()

	if exec == nil || !exec.Post(job) {
		r.logger.Debug("Notification callback dropped: dispatcher not running")
	}
}

// register subscribes ch. onPayload may be nil; so may deliver.
func (r *Router) register(ctx context.Context, ch Channel, onPayload func([]byte), deliver func([]byte)) error {
	spec, err := protocol.ResolveNotify(channelCharacteristics[ch])
	if err != nil {
		return err
	}

	if r.isActive(ch) {
		if err := r.unregister(ctx, ch); err != nil {
			return err
		}
	}

	handler := func(data []byte) {
		payload := append([]byte(nil), data...)
		if len(payload) > spec.NotifyLen {
			payload = payload[:spec.NotifyLen]
		}
		if onPayload != nil {
			onPayload(payload)
		}
		if deliver != nil {
			r.post(func() { deliver(payload) })
		}
	}

	if err := r.transport.Subscribe(ctx, spec.UUID, handler); err != nil {
		r.logger.WithFields(logrus.Fields{
			"channel": ch,
			"error":   err,
		}).Error("Failed to subscribe to notifications")
		return err
	}

	r.active.Set(string(ch), spec)
	r.logger.WithField("channel", ch).Info("Subscribed to notifications")
	return nil
}

func (r *Router) unregister(ctx context.Context, ch Channel) error {
	spec, ok := r.active.Get(string(ch))
	if !ok {
		return nil
	}
	if err := r.transport.Unsubscribe(ctx, spec.UUID); err != nil {
		return err
	}
	r.active.Del(string(ch))
	r.logger.WithField("channel", ch).Info("Unsubscribed from notifications")
	return nil
}

// unregisterAll unsubscribes every active channel and forgets it even on failure.
func (r *Router) unregisterAll(ctx context.Context) map[Channel]error {
	failures := make(map[Channel]error)
	for _, ch := range r.channels() {
		spec, ok := r.active.Get(string(ch))
		if !ok {
			continue
		}
		if err := unsubscribeQuietly(ctx, r.transport, spec); err != nil {
			failures[ch] = err
		}
		r.active.Del(string(ch))
	}
	return failures
}

func unsubscribeQuietly(ctx context.Context, t Transport, spec protocol.CharacteristicSpec) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unsubscribe panicked: %v", rec)
		}
	}()
	return t.Unsubscribe(ctx, spec.UUID)
}

func (r *Router) isActive(ch Channel) bool {
	_, ok := r.active.Get(string(ch))
	return ok
}

// channels returns the active channels in sorted order
func (r *Router) channels() []Channel {
	out := make([]Channel, 0, r.active.Len())
	r.active.Range(func(key string, _ protocol.CharacteristicSpec) bool {
		out = append(out, Channel(key))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
