package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/membership"
	"github.com/codeWithGodstime/meetmesh/internal/router"
)

// LocalBroadcaster fans an envelope out to the connections on this instance.
type LocalBroadcaster struct {
	hub     *Hub
	members *membership.Manager
	log     zerolog.Logger
}

func NewLocalBroadcaster(hub *Hub, members *membership.Manager, log zerolog.Logger) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub, members: members, log: log}
}

func (b *LocalBroadcaster) Broadcast(_ context.Context, env router.Envelope) error {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	b.fanout(env, payload)
	return nil
}

// fanout delivers payload to every local member of the group. Handles
// without a local connection are pruned from the group.
func (b *LocalBroadcaster) fanout(env router.Envelope, payload []byte) int {
	for _, h := range env.Joined {
		if b.hub.Has(h) {
			b.members.Add(env.Group, h)
		}
	}

	delivered := 0
	for _, h := range b.members.Members(env.Group) {
		err := b.hub.Deliver(h, payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, errNotRegistered):
			b.members.Remove(env.Group, h)
		default:
			b.log.Warn().Err(err).Str("handle", h.String()).Int64("conversation_id", env.Group).Msg("event dropped")
		}
	}
	return delivered
}

// RedisBroadcaster publishes envelopes on a channel every instance
// subscribes to; each instance then fans out to its own connections.
type RedisBroadcaster struct {
	redis   *redis.Client
	channel string
	local   *LocalBroadcaster
	log     zerolog.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, local *LocalBroadcaster, log zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		redis:   client,
		channel: channel,
		local:   local,
		log:     log,
	}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, env router.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.redis.Publish(ctx, b.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Run listens for envelopes from every instance until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *RedisBroadcaster) handle(data []byte) {
	var env router.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Warn().Err(err).Msg("discarding malformed envelope")
		return
	}
	payload, err := json.Marshal(env.Event)
	if err != nil {
		b.log.Warn().Err(err).Msg("discarding unencodable event")
		return
	}
	b.local.fanout(env, payload)
}
