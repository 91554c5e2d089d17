package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/model"
)

// StateFunc returns the current view state of a session (answer to "sync").
type StateFunc func(ctx context.Context, sessionID string) (any, error)

// Hub fans session events out to every tab subscribed to that session.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	state      StateFunc
	metrics    *metrics.Collector
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(maxConns int, state StateFunc, m *metrics.Collector) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		state:      state,
		metrics:    m,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.metrics.AddWSClients(-h.total)
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting session=%s", h.maxConns, logger.MaskID(c.sessionID))
		c.Close()
		return
	}
	if _, ok := h.clients[c.sessionID]; !ok {
		h.clients[c.sessionID] = make(map[*Client]struct{})
	}
	h.clients[c.sessionID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	h.metrics.AddWSClients(1)

	// Новая вкладка сразу получает текущее состояние.
	go h.pushState(context.Background(), c, EventStateChanged)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.sessionID)
	}
	h.mu.Unlock()
	h.metrics.AddWSClients(-1)

	// Network I/O outside the lock.
	c.Close()
}

// Clients returns the number of tabs subscribed to sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSync:
		h.pushState(ctx, c, EventStateChanged)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: model.ErrorResponse{Error: "unknown event type"}})
	}
}

func (h *Hub) pushState(ctx context.Context, c *Client, event EventType) {
	if h.state == nil {
		return
	}
	defer logger.DeferLogDuration("ws.pushState", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := h.state(ctx, c.sessionID)
	if err != nil {
		logger.Errorf("ws state session=%s: %v", logger.MaskID(c.sessionID), err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: model.ErrorResponse{Error: err.Error()}})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: event, Payload: st})
}

// Notify sends event to every tab of sessionID. Sessions without subscribers are skipped.
func (h *Hub) Notify(sessionID, event string, payload any) {
	h.sendToSession(sessionID, OutgoingMessage{Type: EventType(event), Payload: payload})
}

func (h *Hub) sendToSession(sessionID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	if !c.enqueue(msg) {
		// Очередь ошибок переполнена: вкладка не читает, закрываем.
		logger.Errorf("ws send buffer full, closing slow client session=%s", logger.MaskID(c.sessionID))
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
