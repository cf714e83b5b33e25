package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/chat"
	"github.com/codeWithGodstime/meetmesh/internal/membership"
	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

// State is the stage a send has reached.
type State int

const (
	Requested State = iota
	RoomResolved
	Persisted
	Broadcast
	Acknowledged
	Failed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case RoomResolved:
		return "room_resolved"
	case Persisted:
		return "persisted"
	case Broadcast:
		return "broadcast"
	case Acknowledged:
		return "acknowledged"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Receipt struct {
	Conversation *chat.Conversation
	Message      *chat.Message
	State        State
}

type Router struct {
	store       chat.Store
	presence    presence.Registry
	members     *membership.Manager
	broadcaster Broadcaster
	limiter     Limiter
	log         zerolog.Logger
}

func New(store chat.Store, reg presence.Registry, members *membership.Manager, b Broadcaster, limiter Limiter, log zerolog.Logger) *Router {
	return &Router{
		store:       store,
		presence:    reg,
		members:     members,
		broadcaster: b,
		limiter:     limiter,
		log:         log,
	}
}

// Send delivers content from sender to receiver: resolve the room,
// persist, subscribe live connections, then publish. A message that was
// persisted is acknowledged even when the publish fails.
func (r *Router) Send(ctx context.Context, sender, receiver user.ID, content string) (*Receipt, error) {
	log := r.log.With().Int("sender", int(sender)).Int("receiver", int(receiver)).Logger()

	if err := r.checkLimit(ctx, sender); err != nil {
		return nil, r.fail(log, Requested, err)
	}

	conv, err := r.store.GetOrCreateRoom(ctx, sender, receiver)
	if err != nil {
		return nil, r.fail(log, Requested, err)
	}
	receipt := &Receipt{Conversation: conv, State: RoomResolved}

	msg, err := r.store.AppendMessage(ctx, conv.ID, sender, content)
	if err != nil {
		return nil, r.fail(log, RoomResolved, err)
	}
	receipt.Message = msg
	receipt.State = Persisted

	joined := r.join(ctx, log, conv.ID, sender, receiver)

	// The message is durable now; a caller hanging up must not stop delivery.
	env := Envelope{Group: conv.ID, Joined: joined, Event: NewMessageEvent(conv, msg, sender)}
	if err := r.broadcaster.Broadcast(context.WithoutCancel(ctx), env); err != nil {
		err = fmt.Errorf("%w: %v", apperrors.ErrTransportUnavailable, err)
		log.Error().Err(err).Int64("conversation_id", conv.ID).Int64("message_id", msg.ID).Msg("broadcast failed")
	}

	receipt.State = Acknowledged
	log.Debug().Int64("conversation_id", conv.ID).Int64("message_id", msg.ID).Msg("message routed")
	return receipt, nil
}

// SendMessage lets the REST surface route through the same pipeline.
func (r *Router) SendMessage(ctx context.Context, sender, receiver user.ID, content string) (*chat.Message, error) {
	receipt, err := r.Send(ctx, sender, receiver, content)
	if err != nil {
		return nil, err
	}
	return receipt.Message, nil
}

func (r *Router) checkLimit(ctx context.Context, sender user.ID) error {
	if r.limiter == nil {
		return nil
	}
	ok, err := r.limiter.Allow(ctx, sender)
	if err != nil {
		// Fail open: a limiter outage must not stop conversations.
		r.log.Warn().Err(err).Int("sender", int(sender)).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return apperrors.ErrRateLimited
	}
	return nil
}

func (r *Router) join(ctx context.Context, log zerolog.Logger, group int64, users ...user.ID) []presence.Handle {
	var joined []presence.Handle
	for _, u := range users {
		h, ok, err := r.presence.Get(ctx, u)
		if err != nil {
			log.Warn().Err(err).Int("user_id", int(u)).Msg("presence lookup failed")
			continue
		}
		if !ok {
			continue
		}
		r.members.Add(group, h)
		joined = append(joined, h)
	}
	return joined
}

// fail logs a send that stopped before persistence. Validation problems
// are the caller's; anything else is a storage fault.
func (r *Router) fail(log zerolog.Logger, reached State, err error) error {
	ev := log.Info()
	msg := "send rejected"
	if apperrors.HTTPStatusFromError(err) >= http.StatusInternalServerError {
		ev = log.Error()
		msg = "send failed"
	}
	ev.Err(err).Str("reached", reached.String()).Str("state", Failed.String()).Msg(msg)
	return err
}
