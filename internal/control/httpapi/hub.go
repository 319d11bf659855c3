package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// MaxConnectionsPerIP bounds concurrent debug WebSocket clients per
// address, the same DoS guard the teacher applies to its player-facing
// WebSocket hub.
const MaxConnectionsPerIP = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ httpapi: WebSocket connection rejected from origin: %s", origin)
		return false
	},
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// Hub broadcasts engine-state snapshots (Snapshot, see server.go) to
// every connected debug-inspector client. Adapted from the teacher's
// WebSocketHub: same register/unregister/broadcast channel trio, minus the
// game-specific player/particle payload.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient
	perIP   map[string]int

	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
}

// NewHub constructs an idle Hub; call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*wsClient),
		perIP:      make(map[string]int),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
	}
}

// Run processes register/unregister/broadcast events until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c
			h.perIP[c.ip]++
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[conn]; ok {
				h.perIP[c.ip]--
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast JSON-encodes v and fans it out to every connected client,
// dropping the message (rather than blocking) if the channel is full.
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades r into a hub-registered connection, enforcing
// MaxConnectionsPerIP before accepting.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)

	h.mu.RLock()
	count := h.perIP[ip]
	h.mu.RUnlock()
	if count >= MaxConnectionsPerIP {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn, ip: ip}
	h.register <- client

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
