package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/membership"
	myMiddleware "github.com/codeWithGodstime/meetmesh/internal/middleware"
	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/router"
	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

const cleanupTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin; browser origins are not restricted yet.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub        *Hub
	router     *router.Router
	members    *membership.Manager
	presence   presence.Registry
	bufferSize int
	log        zerolog.Logger

	mu      sync.Mutex
	closing bool
	active  sync.WaitGroup
}

func NewHandler(hub *Hub, r *router.Router, members *membership.Manager, reg presence.Registry, bufferSize int, log zerolog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		router:     r,
		members:    members,
		presence:   reg,
		bufferSize: bufferSize,
		log:        log,
	}
}

// ServeWs runs one connection from upgrade to cleanup. The auth middleware
// has already rejected unauthenticated requests.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, username, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		apperrors.WriteJSON(w, apperrors.ErrUnauthorized)
		return
	}
	userID := user.ID(id)

	if !h.track() {
		apperrors.WriteJSON(w, apperrors.ErrTransportUnavailable)
		return
	}
	defer h.active.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Int("user_id", id).Msg("websocket upgrade failed")
		return
	}

	handle := presence.NewHandle()
	log := h.log.With().Int("user_id", id).Str("username", username).Str("handle", handle.String()).Logger()
	client := &Client{
		hub:    h.hub,
		conn:   conn,
		handle: handle,
		userID: userID,
		send:   make(chan []byte, h.bufferSize),
		log:    log,
	}

	// Register before joining groups so fan-out never prunes a handle
	// that is still starting up.
	h.hub.Register(client)
	if h.isClosing() {
		// Registered after Shutdown took its snapshot.
		client.closeConn(websocket.CloseGoingAway, "server shutting down")
	}

	ctx := r.Context()
	groups, err := h.members.Rebuild(ctx, handle, userID)
	if err != nil {
		log.Error().Err(err).Msg("membership rebuild failed")
		h.members.DropAll(handle)
		h.hub.Unregister(client)
		client.closeConn(websocket.CloseInternalServerErr, "try again later")
		return
	}

	if err := h.presence.Set(ctx, userID, handle); err != nil {
		log.Error().Err(err).Msg("presence set failed")
	}
	log.Info().Int("groups", groups).Msg("🔌 connection active")

	go client.writePump()
	client.readPump(ctx, func(ctx context.Context, f inboundFrame) error {
		_, err := h.router.Send(ctx, userID, user.ID(f.Receiver), f.Content)
		return clientError(err)
	})

	h.disconnect(client)
	log.Info().Msg("connection closed")
}

// Shutdown refuses new connections, closes the open ones and waits until
// each has left its groups and cleared its presence.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	n := h.hub.CloseAll()
	h.log.Info().Int("connections", n).Msg("closing websocket connections")

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.active.Add(1)
	return true
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// disconnect leaves every group and clears presence before the queue is
// closed, so nothing routes to a dead handle afterwards.
func (h *Handler) disconnect(c *Client) {
	h.members.DropAll(c.handle)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := h.presence.ClearIf(ctx, c.userID, c.handle); err != nil {
		c.log.Warn().Err(err).Msg("presence clear failed")
	}

	h.hub.Unregister(c)
}

func clientError(err error) error {
	if err == nil {
		return nil
	}
	code := apperrors.HTTPStatusFromError(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		return errors.New("internal error")
	}
	return err
}
