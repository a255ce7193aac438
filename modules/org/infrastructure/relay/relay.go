// Package relay fans hierarchy change events out to other server instances
// over Redis pub/sub, so their in-process caches drop stale forests.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/events"
	"github.com/iota-uz/org-hierarchy/pkg/eventbus"
)

const (
	DefaultChannel = "org-hierarchy:events"
	publishTimeout = 5 * time.Second
)

// Meta travels next to the payload. Handlers subscribe to (*Meta, *Event) to
// tell remote events from local ones.
type Meta struct {
	Topic    string    `json:"topic"`
	Origin   string    `json:"origin"`
	TenantID uuid.UUID `json:"tenant_id"`
}

type message struct {
	Meta    Meta            `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

type Options struct {
	Channel string
	// Origin identifies this instance; a random id when empty.
	Origin string
	Logger *logrus.Logger
}

type Relay struct {
	client  redis.UniversalClient
	bus     eventbus.EventBusWithError
	channel string
	origin  string
	logger  *logrus.Logger
	publish func(ctx context.Context, payload []byte) error
}

func New(client redis.UniversalClient, bus eventbus.EventBusWithError, opts Options) *Relay {
	r := &Relay{
		client:  client,
		bus:     bus,
		channel: opts.Channel,
		origin:  opts.Origin,
		logger:  opts.Logger,
	}
	if r.channel == "" {
		r.channel = DefaultChannel
	}
	if r.origin == "" {
		r.origin = uuid.NewString()
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	r.publish = func(ctx context.Context, payload []byte) error {
		return r.client.Publish(ctx, r.channel, payload).Err()
	}
	return r
}

func (r *Relay) Origin() string { return r.origin }

// Forward is subscribed to the local bus and pushes committed changes to the
// channel. Failures are logged; the write already happened.
func (r *Relay) Forward(ev *events.HierarchyChangedV1) {
	if ev == nil {
		return
	}
	payload, err := r.encode(ev)
	if err != nil {
		r.logger.WithError(err).Error("relay: encode hierarchy event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.publish(ctx, payload); err != nil {
		r.logger.WithError(err).WithField("event_id", ev.EventID).Warn("relay: publish hierarchy event")
	}
}

func (r *Relay) encode(ev *events.HierarchyChangedV1) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(message{
		Meta:    Meta{Topic: ev.Topic(), Origin: r.origin, TenantID: ev.TenantID},
		Payload: body,
	})
}

// Dispatch decodes one channel message and republishes it on the local bus.
// Messages sent by this instance are dropped.
func (r *Relay) Dispatch(ctx context.Context, payload []byte) error {
	_ = ctx
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("relay: decode message: %w", err)
	}
	if msg.Meta.Origin == r.origin {
		return nil
	}
	switch msg.Meta.Topic {
	case events.TopicHierarchyChangedV1:
	default:
		return fmt.Errorf("relay: unsupported topic %q", msg.Meta.Topic)
	}

	var ev events.HierarchyChangedV1
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("relay: decode payload: %w", err)
	}
	return r.bus.PublishE(&msg.Meta, &ev)
}

// Run listens on the channel until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Dispatch(ctx, []byte(m.Payload)); err != nil {
				r.logger.WithError(err).Warn("relay: dispatch failed")
			}
		}
	}
}
