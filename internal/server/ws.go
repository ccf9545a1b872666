package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradeedge/internal/errors"
	"tradeedge/internal/models"
	"tradeedge/internal/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn adapts a WebSocket connection to the stream.Conn interface. Writes
// go through a buffered outbound channel drained by a single write pump, so
// Send never touches the socket concurrently.
type wsConn struct {
	id          string
	userID      int64
	established time.Time

	ws       *websocket.Conn
	outbound chan models.DeliveredMessage

	closeOnce sync.Once
	closed    chan struct{}
	logger    zerolog.Logger
}

var _ stream.Conn = (*wsConn)(nil)

func newWSConn(userID int64, ws *websocket.Conn, sendBuffer int, logger zerolog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:          id,
		userID:      userID,
		established: time.Now().UTC(),
		ws:          ws,
		outbound:    make(chan models.DeliveredMessage, sendBuffer),
		closed:      make(chan struct{}),
		logger:      logger.With().Str("connection_id", id).Int64("user_id", userID).Logger(),
	}
}

func (c *wsConn) ID() string               { return c.id }
func (c *wsConn) UserID() int64            { return c.userID }
func (c *wsConn) EstablishedAt() time.Time { return c.established }

// Send enqueues a message for the write pump. A full buffer blocks until
// the dispatcher's delivery timeout expires, which then counts as a
// delivery failure for this connection.
func (c *wsConn) Send(ctx context.Context, msg models.DeliveredMessage) error {
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	case <-c.closed:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return errors.ErrSendTimeout
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
	return nil
}

// writePump serializes all socket writes and keeps the connection alive
// with periodic pings. It runs until the connection dies or is closed.
func (c *wsConn) writePump(onDead func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		onDead()
	}()

	for {
		select {
		case msg := <-c.outbound:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readPump discards inbound frames. Clients only receive on this socket,
// but reading is required to process pongs and detect closure.
func (c *wsConn) readPump(onDead func()) {
	defer onDead()

	c.ws.SetReadLimit(512)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("WebSocket read failed")
			}
			return
		}
	}
}
