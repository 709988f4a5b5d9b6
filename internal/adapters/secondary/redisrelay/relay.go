// Package redisrelay carries bus events between service instances over a
// Redis pub/sub channel.
package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/metrics"
)

// Directions reported to metrics.
const (
	DirectionOut     = "out"
	DirectionIn      = "in"
	DirectionDropped = "dropped"
)

const defaultQueueSize = 1024

var errSubscriptionClosed = errors.New("relay subscription closed")

// LocalPublisher delivers an event to this instance's subscribers only.
type LocalPublisher interface {
	PublishLocal(ev domain.Event)
}

// Options configures a Relay.
type Options struct {
	Channel    string
	InstanceID string
	QueueSize  int
}

type message struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Relay forwards locally published events to Redis and re-publishes events
// from other instances on the local bus.
type Relay struct {
	client  *redis.Client
	local   LocalPublisher
	channel string
	origin  string
	logger  *slog.Logger
	metrics *metrics.Metrics

	queueMu sync.Mutex
	queue   chan []byte
	ready   chan struct{}
}

// New builds a Relay. Call Run to start it. metrics may be nil.
func New(client *redis.Client, local LocalPublisher, opts Options, logger *slog.Logger, m *metrics.Metrics) *Relay {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Relay{
		client:  client,
		local:   local,
		channel: opts.Channel,
		origin:  opts.InstanceID,
		logger:  logger.With("component", "redis_relay", "channel", opts.Channel),
		metrics: m,
		queue:   make(chan []byte, size),
		ready:   make(chan struct{}),
	}
}

// Forward queues ev for publication. It never blocks: when the queue is
// full the oldest pending message is dropped.
func (r *Relay) Forward(ev domain.Event) {
	data, err := encode(r.origin, ev)
	if err != nil {
		r.logger.Error("failed to encode relay message", "event_type", ev.Type(), "error", err)
		return
	}

	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	for {
		select {
		case r.queue <- data:
			return
		default:
		}
		select {
		case <-r.queue:
			r.metrics.Relayed(DirectionDropped)
		default:
		}
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the channel and pumps messages both ways until ctx is
// cancelled. A cancelled ctx is not an error.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("relay subscribed", "instance_id", r.origin)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.publishLoop(gctx) })
	g.Go(func() error { return r.receiveLoop(gctx, pubsub.Channel()) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Relay) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-r.queue:
			if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("failed to publish relay message", "error", err)
				continue
			}
			r.metrics.Relayed(DirectionOut)
		}
	}
}

func (r *Relay) receiveLoop(ctx context.Context, ch <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

// handle re-publishes a remote event locally. Messages from this instance
// and undecodable messages are skipped.
func (r *Relay) handle(payload []byte) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.Warn("discarding malformed relay message", "error", err)
		return
	}
	if msg.Origin == r.origin {
		return
	}
	ev, err := domain.UnmarshalEvent(msg.Event)
	if err != nil {
		r.logger.Warn("discarding undecodable relay event", "origin", msg.Origin, "error", err)
		return
	}
	r.metrics.Relayed(DirectionIn)
	r.local.PublishLocal(ev)
}

func encode(origin string, ev domain.Event) ([]byte, error) {
	raw, err := domain.MarshalEvent(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message{Origin: origin, Event: raw})
}
