package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/user"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 8192
)

// inboundFrame is what a client sends to post a message.
type inboundFrame struct {
	Receiver int    `json:"receiver"`
	Content  string `json:"content"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	handle presence.Handle
	userID user.ID
	send   chan []byte
	log    zerolog.Logger
}

// readPump decodes inbound frames and hands each to dispatch until the
// peer goes away.
func (c *Client) readPump(ctx context.Context, dispatch func(context.Context, inboundFrame) error) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("invalid message format")
			continue
		}
		if frame.Receiver <= 0 {
			c.sendError("receiver is required")
			continue
		}

		if err := dispatch(ctx, frame); err != nil {
			c.sendError(err.Error())
		}
	}
}

// writePump drains the send queue onto the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(msg string) {
	payload, _ := json.Marshal(errorFrame{Type: "error", Error: msg})
	if err := c.hub.Deliver(c.handle, payload); err != nil {
		c.log.Warn().Err(err).Msg("dropped error frame")
	}
}

func (c *Client) closeConn(code int, reason string) {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	c.conn.Close()
}
