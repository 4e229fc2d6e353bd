package viz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/logging"
)

const writeWait = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MonitorTick is the JSON document sent for every loop tick.
type MonitorTick struct {
	control.Diagnostic
	LastCommand *control.Command `json:"last_command,omitempty"`
}

// WebMonitor broadcasts every tick to websocket clients on /ws and serves
// the newest one on /latest.
type WebMonitor struct {
	log *logging.Logger

	clientsMutex sync.Mutex
	clients      map[*websocket.Conn]bool

	mu      sync.Mutex
	latest  []byte
	lastCmd *control.Command
}

func NewWebMonitor(log *logging.Logger) *WebMonitor {
	if log == nil {
		log = logging.Nop()
	}
	return &WebMonitor{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

func (m *WebMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWs)
	mux.HandleFunc("/latest", m.handleLatest)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (m *WebMonitor) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
		m.closeAll()
	}()
	m.log.Info("web monitor listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *WebMonitor) Clients() int {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	return len(m.clients)
}

func (m *WebMonitor) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade: %v", err)
		return
	}

	m.clientsMutex.Lock()
	m.clients[conn] = true
	n := len(m.clients)
	m.clientsMutex.Unlock()
	m.log.Debug("monitor client connected, %d total", n)

	go m.handleClientMessages(conn)
}

// handleClientMessages drains the client until it goes away.
func (m *WebMonitor) handleClientMessages(conn *websocket.Conn) {
	defer m.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.Debug("websocket: %v", err)
			}
			return
		}
	}
}

func (m *WebMonitor) drop(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	if m.clients[conn] {
		delete(m.clients, conn)
		conn.Close()
	}
}

func (m *WebMonitor) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for conn := range m.clients {
		conn.Close()
		delete(m.clients, conn)
	}
}

func (m *WebMonitor) handleLatest(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	latest := m.latest
	m.mu.Unlock()
	if latest == nil {
		http.Error(w, "no tick yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(latest)
}

func (m *WebMonitor) PublishCommand(_ context.Context, c control.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCmd = &c
	return nil
}

func (m *WebMonitor) PublishDiagnostic(_ context.Context, d control.Diagnostic) error {
	m.mu.Lock()
	data, err := json.Marshal(MonitorTick{Diagnostic: d, LastCommand: m.lastCmd})
	if err == nil {
		m.latest = data
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.log.Debug("websocket write: %v", err)
			conn.Close()
			delete(m.clients, conn)
		}
	}
	return nil
}
