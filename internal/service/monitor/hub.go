package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
)

// Message 定义了 WebSocket 消息的通用格式
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Status 是 /api/status 返回的运行快照。
type Status struct {
	RunID           string       `json:"run_id"`
	Source          string       `json:"source"`
	TotalRows       int          `json:"total_rows"`
	CurrentRow      int          `json:"current_row"`
	RowsFinished    int          `json:"rows_finished"`
	RowsFailed      int          `json:"rows_failed"`
	AvailableEgress int          `json:"available_egress"`
	Finished        bool         `json:"finished"`
	Outcome         string       `json:"outcome,omitempty"`
	LastEvent       *types.Event `json:"last_event,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Hub maintains the set of active clients and broadcasts run events to
// them. It implements app.Reporter.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex

	statusMu sync.RWMutex
	status   Status

	log zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		log:        logger.WithComponent("Monitor/Hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			h.log.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				h.log.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					// the read pump unregisters disconnected clients
					h.log.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Report 更新状态快照并广播事件，广播通道满时丢弃，不阻塞运行循环。
func (h *Hub) Report(ev types.Event) {
	h.apply(ev)

	jsonMsg, err := json.Marshal(Message{Type: string(ev.Type), Data: ev})
	if err != nil {
		h.log.Error().Err(err).Msg("Hub: Failed to marshal run event")
		return
	}
	select {
	case h.broadcast <- jsonMsg:
	default:
		// Do not log warning for full channel to avoid log spam
	}
}

func (h *Hub) apply(ev types.Event) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()

	s := &h.status
	if s.RunID != ev.RunID {
		*s = Status{RunID: ev.RunID}
	}
	if ev.Source != "" {
		s.Source = ev.Source
	}
	if ev.TotalRows > 0 {
		s.TotalRows = ev.TotalRows
	}
	s.AvailableEgress = ev.Available
	switch ev.Type {
	case types.EventRowStarted:
		s.CurrentRow = ev.Row
	case types.EventRowFinished:
		s.RowsFinished++
		if ev.Outcome == "failed" {
			s.RowsFailed++
		}
	case types.EventRunFinished:
		s.Finished = true
		s.Outcome = ev.Outcome
	}
	evCopy := ev
	s.LastEvent = &evCopy
	s.UpdatedAt = ev.At
}

// Status returns the current run snapshot.
func (h *Hub) Status() Status {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.status
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from the peer.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	// This is a read pump. It's needed to detect when a client closes the connection.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
