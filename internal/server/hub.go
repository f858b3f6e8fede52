package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zappabad/herdmarket/internal/engine"
	feedview "github.com/zappabad/herdmarket/internal/feed/view"
	"github.com/zappabad/herdmarket/internal/logger"
)

// Hub fans step events out to websocket clients.
type Hub struct {
	cfg Config

	mu      sync.Mutex
	clients map[*client]struct{}

	closed  chan struct{}
	closeMu sync.Mutex
	wg      sync.WaitGroup

	dropped atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// last is the newest step queued to the client, guarded by Hub.mu.
	last int
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewHub starts broadcasting events until the channel closes or the hub is closed.
func NewHub(events <-chan feedview.StepEvent, cfg Config) *Hub {
	h := &Hub{
		cfg:     cfg.withDefaults(),
		clients: make(map[*client]struct{}),
		closed:  make(chan struct{}),
	}
	h.wg.Add(1)
	go h.broadcastLoop(events)
	return h
}

// Attach registers conn and starts its pumps. replay is called with
// broadcasts held off, so the client receives every step from the replayed
// ones on exactly once.
func (h *Hub) Attach(conn *websocket.Conn, replay func() []*engine.StepRecord) {
	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}

	var records []*engine.StepRecord
	if replay != nil {
		records = replay()
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, h.cfg.ClientBuffer+len(records)),
		done: make(chan struct{}),
		last: -1,
	}
	for _, rec := range records {
		msg, err := json.Marshal(rec)
		if err != nil {
			logger.Error("Hub: failed to encode step %d: %v", rec.Model.Step, err)
			continue
		}
		c.send <- msg
		c.last = rec.Model.Step
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DroppedMessages returns the number of messages slow clients missed.
func (h *Hub) DroppedMessages() int64 { return h.dropped.Load() }

// Close disconnects every client and waits for the pumps to exit.
func (h *Hub) Close() {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()

	select {
	case <-h.closed:
		return
	default:
		close(h.closed)
	}

	h.mu.Lock()
	for c := range h.clients {
		c.stop()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) broadcastLoop(events <-chan feedview.StepEvent) {
	defer h.wg.Done()

	for {
		select {
		case <-h.closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Record == nil {
				continue
			}
			msg, err := json.Marshal(ev.Record)
			if err != nil {
				logger.Error("Hub: failed to encode step %d: %v", ev.Record.Model.Step, err)
				continue
			}
			h.broadcast(ev.Record.Model.Step, msg)
		}
	}
}

// broadcast queues msg to every client that has not been sent step yet.
// A client whose queue is full misses the message but stays connected.
func (h *Hub) broadcast(step int, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if step <= c.last {
			continue
		}
		select {
		case c.send <- msg:
			c.last = step
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()
	defer h.remove(c)

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Hub: client write failed: %v", err)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer c.stop()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
