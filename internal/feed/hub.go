// Package feed pushes live seat and price changes of flights to websocket
// subscribers.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iliyamo/flight-marketplace/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is one frame sent to subscribers.
type Message struct {
	Type      string            `json:"type"`
	Flight    model.FlightState `json:"flight"`
	Timestamp int64             `json:"timestamp"`
}

const (
	TypeSnapshot = "snapshot"
	TypeUpdate   = "inventory_updated"
)

type subscriber struct {
	code string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans inventory updates out to the subscribers of each flight code.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan Message

	mu      sync.RWMutex
	clients map[string]map[*subscriber]bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan Message, 256),
		clients:    make(map[string]map[*subscriber]bool),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for code, subs := range h.clients {
				for s := range subs {
					close(s.send)
				}
				delete(h.clients, code)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			if h.clients[s.code] == nil {
				h.clients[s.code] = make(map[*subscriber]bool)
			}
			h.clients[s.code][s] = true
			h.mu.Unlock()
			h.logger.Debug("feed subscriber registered", "flight", s.code)

		case s := <-h.unregister:
			h.drop(s)

		case m := <-h.broadcast:
			data, err := json.Marshal(m)
			if err != nil {
				h.logger.Warn("feed marshal failed", "err", err)
				continue
			}
			h.mu.RLock()
			var slow []*subscriber
			for s := range h.clients[m.Flight.Code] {
				select {
				case s.send <- data:
				default:
					slow = append(slow, s)
				}
			}
			h.mu.RUnlock()
			for _, s := range slow {
				h.drop(s)
			}
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[s.code]
	if !ok || !subs[s] {
		return
	}
	delete(subs, s)
	close(s.send)
	if len(subs) == 0 {
		delete(h.clients, s.code)
	}
}

// Publish queues st for the flight's subscribers. It never blocks: when
// the hub is backed up the update is dropped, since a later one carries
// the newer state anyway.
func (h *Hub) Publish(st model.FlightState) {
	select {
	case h.broadcast <- Message{Type: TypeUpdate, Flight: st, Timestamp: time.Now().UnixMilli()}:
	default:
		h.logger.Debug("feed backlog full, update dropped", "flight", st.Code)
	}
}

// Subscribers returns how many connections watch code.
func (h *Hub) Subscribers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[code])
}

// Serve upgrades the request to a websocket, sends the flight's current
// state and then streams its updates until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, current model.FlightState) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &subscriber{code: current.Code, conn: conn, send: make(chan []byte, sendBuffer)}

	first, err := json.Marshal(Message{Type: TypeSnapshot, Flight: current, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		conn.Close()
		return err
	}
	s.send <- first

	select {
	case h.register <- s:
	case <-r.Context().Done():
		conn.Close()
		return r.Context().Err()
	}
	go h.writePump(s)
	h.readPump(s)
	return nil
}

// readPump discards client frames and notices when the peer disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		select {
		case h.unregister <- s:
		default:
			h.drop(s)
		}
		s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
