package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessionedit/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Браузер шлёт только {"type":"sync"}.
	maxMessageSize = 256
	// Очередь только для событий error: состояния не копятся, см. latest.
	sendBufSize = 16
	// syncInterval — не чаще одного ответа на sync от вкладки.
	syncInterval = 200 * time.Millisecond
)

// Client is one browser tab subscribed to a session's events.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string

	// send holds error events in order.
	send chan OutgoingMessage
	// latest is the newest view state not yet written; a newer one replaces it.
	mu     sync.Mutex
	latest *OutgoingMessage
	wake   chan struct{}

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan OutgoingMessage, sendBufSize),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the pumps. ctx controls their lifetime; cancel is kept for Close.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pumps have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close stops the client. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.conn.Close()
	})
}

// enqueue hands msg to the write pump. View states replace an unsent one, so a tab that
// falls behind gets the newest state instead of the backlog. It returns false when the
// error queue is full.
func (c *Client) enqueue(msg OutgoingMessage) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	if msg.Type.carriesState() {
		c.mu.Lock()
		c.latest = &msg
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) takeLatest() (OutgoingMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return OutgoingMessage{}, false
	}
	msg := *c.latest
	c.latest = nil
	return msg, true
}

// readPump answers sync requests of the tab. Exits on read error, which Close triggers.
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline session=%s: %v", logger.MaskID(c.sessionID), err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var lastSync time.Time
	for {
		var msg IncomingMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				logger.Errorf("ws bad message session=%s: %v", logger.MaskID(c.sessionID), err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error session=%s: %v", logger.MaskID(c.sessionID), err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if msg.Type == EventSync {
			// Повторный sync в пределах интервала: состояние уже в пути.
			if time.Since(lastSync) < syncInterval {
				continue
			}
			lastSync = time.Now()
		}
		c.hub.HandleMessage(ctx, c, msg)
	}
}

// writePump writes queued errors, the newest view state and pings.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-c.wake:
			if msg, ok := c.takeLatest(); ok && !c.write(msg) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write encodes msg straight into the frame; view states with a rendered chunk are large.
func (c *Client) write(msg OutgoingMessage) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logger.Errorf("ws set write deadline session=%s: %v", logger.MaskID(c.sessionID), err)
		return false
	}
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		logger.Errorf("ws encode %s session=%s: %v", msg.Type, logger.MaskID(c.sessionID), err)
		_ = w.Close()
		return false
	}
	return w.Close() == nil
}
