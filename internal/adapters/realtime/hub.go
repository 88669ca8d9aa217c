// Package realtime fans delivery events out to websocket subscribers.
package realtime

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues event for every client subscribed to it. Clients whose
// buffer is full miss the event.
func (h *Hub) Publish(event domain.DeliveryEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub publish type=%s err=%v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(event) {
			continue
		}
		select {
		case c.send <- b:
		default:
			log.Printf("hub drop type=%s driver_filter=%q", event.Type, c.driverID)
		}
	}
}

// Client is one websocket subscriber. An empty driverID receives every event.
type Client struct {
	conn     *websocket.Conn
	driverID string
	send     chan []byte
}

func NewClient(conn *websocket.Conn, driverID string) *Client {
	return &Client{conn: conn, driverID: driverID, send: make(chan []byte, sendBuffer)}
}

func (c *Client) wants(e domain.DeliveryEvent) bool {
	return c.driverID == "" || e.DriverID == "" || e.DriverID == c.driverID
}

// Serve writes queued events and keepalive pings until ctx ends or a write
// fails.
func (c *Client) Serve(ctx context.Context) error {
	t := time.NewTicker(pingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return err
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
