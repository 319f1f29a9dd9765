package web

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/netsim/internal/core/services/notify"
	"github.com/lcalzada-xor/netsim/internal/core/services/scene"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local tooling only; the surface is unauthenticated by design.
		return true
	},
}

// wsManager pushes device-list snapshots to websocket clients whenever
// the notification bus fires.
type wsManager struct {
	scene *scene.Controller

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	wake    chan struct{}
}

func newWSManager(sc *scene.Controller) *wsManager {
	return &wsManager{
		scene:   sc,
		clients: make(map[*websocket.Conn]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

func (m *wsManager) start(bus *notify.Bus) {
	bus.Register(func() {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	})
	go m.broadcastLoop()
}

func (m *wsManager) broadcastLoop() {
	for range m.wake {
		devices := m.scene.List()
		m.mu.Lock()
		for conn := range m.clients {
			if err := conn.WriteJSON(devices); err != nil {
				log.Printf("web: websocket write failed, dropping client: %v", err)
				conn.Close()
				delete(m.clients, conn)
			}
		}
		m.mu.Unlock()
	}
}

func (m *wsManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade failed: %v", err)
		return
	}
	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	// Initial snapshot so new clients render immediately.
	if err := conn.WriteJSON(m.scene.List()); err != nil {
		m.drop(conn)
		return
	}

	// Reads only detect disconnect; clients never send.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.drop(conn)
				return
			}
		}
	}()
}

func (m *wsManager) drop(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.Close()
	delete(m.clients, conn)
}
