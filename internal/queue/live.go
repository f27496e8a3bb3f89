package queue

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Snapshot is the queue state pushed to subscribed provider dashboards.
type Snapshot struct {
	ProviderID string          `json:"provider_id"`
	Date       string          `json:"date"`
	Waiting    int             `json:"waiting"`
	Completed  int             `json:"completed"`
	InProgress *SnapshotEntry  `json:"in_progress,omitempty"`
	Entries    []SnapshotEntry `json:"entries"`
	SentAt     time.Time       `json:"sent_at"`
}

// SnapshotEntry is one queue entry in a snapshot.
type SnapshotEntry struct {
	BookingID            string `json:"booking_id"`
	PatientName          string `json:"patient_name"`
	Reason               string `json:"reason,omitempty"`
	Position             int    `json:"position"`
	Status               string `json:"status"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

// Hub broadcasts queue snapshots to WebSocket subscribers, one set of
// connections per provider. Broadcast failures only drop the dead
// connection; they never affect queue operations.
type Hub struct {
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[uuid.UUID]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin enforcement happens in the CORS middleware layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Subscribe upgrades the request and registers the connection for the
// provider's queue updates. Blocks until the client disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, providerID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("queue feed upgrade failed", "error", err, "provider_id", providerID)
		return
	}
	h.add(providerID, conn)
	defer h.remove(providerID, conn)

	// Drain control frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes a snapshot to every subscriber of the provider.
func (h *Hub) Broadcast(providerID uuid.UUID, snap Snapshot) {
	if h == nil {
		return
	}
	snap.SentAt = time.Now().UTC()

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[providerID]))
	for conn := range h.subs[providerID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.Debug("queue feed write failed, dropping subscriber", "error", err, "provider_id", providerID)
			h.remove(providerID, conn)
			_ = conn.Close()
		}
	}
}

// SubscriberCount reports active subscribers for a provider.
func (h *Hub) SubscriberCount(providerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[providerID])
}

func (h *Hub) add(providerID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[providerID] == nil {
		h.subs[providerID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[providerID][conn] = struct{}{}
}

func (h *Hub) remove(providerID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[providerID], conn)
	if len(h.subs[providerID]) == 0 {
		delete(h.subs, providerID)
	}
}
