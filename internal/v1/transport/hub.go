package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/config"
	"github.com/tossemideia/synctube/internal/v1/ids"
	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/ratelimit"
	"github.com/tossemideia/synctube/internal/v1/room"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// joinWait bounds how long a fresh socket may sit silent before the
// join handshake is abandoned.
const joinWait = 10 * time.Second

// cleanupInterval is how often the hub sweeps for reapable rooms.
const cleanupInterval = 10 * time.Second

// Hub owns the room registry and the shared background work: the
// heartbeat ticker, empty-room reaping and websocket admission.
type Hub struct {
	mu    sync.Mutex
	rooms map[types.RoomID]*room.Room

	oracle      types.MetadataOracle
	rateLimiter *ratelimit.RateLimiter

	allowedOrigins    []string
	heartbeatInterval time.Duration
	hostGracePeriod   time.Duration
	emptyRoomAge      time.Duration

	running atomic.Bool
}

// NewHub wires a hub from validated configuration.
func NewHub(cfg *config.Config, oracle types.MetadataOracle, rateLimiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		rooms:             make(map[types.RoomID]*room.Room),
		oracle:            oracle,
		rateLimiter:       rateLimiter,
		allowedOrigins:    cfg.AllowedOrigins,
		heartbeatInterval: cfg.HeartbeatInterval,
		hostGracePeriod:   cfg.HostGracePeriod,
		emptyRoomAge:      cfg.EmptyRoomAge,
	}
}

// CreateRoom registers a fresh empty room and returns it.
func (h *Hub) CreateRoom() *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := ids.NewRoomID()
	for {
		if _, taken := h.rooms[id]; !taken {
			break
		}
		id = ids.NewRoomID()
	}

	r := room.NewRoomWithTimings(id, NewRegistry(), h.oracle, h.hostGracePeriod, h.emptyRoomAge)
	h.rooms[id] = r

	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "Created room", zap.String("room_id", string(id)))
	return r
}

// GetRoom looks up a room by id.
func (h *Hub) GetRoom(id types.RoomID) (*room.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	return r, ok
}

// RoomCount reports the number of registered rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Rooms snapshots the registered rooms.
func (h *Hub) Rooms() []*room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Running reports whether the background loop is live; the readiness
// probe checks it.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Run drives the heartbeat and cleanup tickers until the context ends.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	logging.Info(ctx, "Hub running",
		zap.Duration("heartbeat_interval", h.heartbeatInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			for _, r := range h.Rooms() {
				r.Heartbeat()
			}
		case <-cleanup.C:
			h.reapEmptyRooms()
		}
	}
}

// reapEmptyRooms removes rooms with no connections, no queue and enough
// age that a first join cannot still be in flight.
func (h *Hub) reapEmptyRooms() {
	for _, r := range h.Rooms() {
		h.reapIfEmpty(r.ID)
	}
}

// reapIfEmpty removes one room if it currently qualifies. Called by the
// sweep and by a client teardown, so departures free memory promptly.
func (h *Hub) reapIfEmpty(id types.RoomID) {
	h.mu.Lock()
	r, ok := h.rooms[id]
	if !ok || !r.IsEmpty() {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, id)
	h.mu.Unlock()

	r.Close()
	metrics.ActiveRooms.Dec()
	logging.Info(context.Background(), "Reaped empty room", zap.String("room_id", string(id)))
}

// Shutdown closes every room and detaches their connections.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down hub - closing all active rooms...")

	h.mu.Lock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	for id, r := range h.rooms {
		rooms = append(rooms, r)
		delete(h.rooms, id)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.Close()
		metrics.ActiveRooms.Dec()
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))
	return nil
}

// ServeWs admits a websocket session: rate limit, upgrade, then the join
// handshake. A connection to an unknown room is accepted and immediately
// closed with code 4004 so the client can tell "no such room" apart from
// a network failure.
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	roomID := types.RoomID(c.Param("roomId"))
	r, exists := h.GetRoom(roomID)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			return originAllowed(req, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	if !exists {
		closeFrame := websocket.FormatCloseMessage(protocol.CloseRoomNotFound, "Room not found")
		_ = conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	h.runSession(conn, r)
}

// runSession performs the join handshake on an upgraded connection and
// starts the pumps.
func (h *Hub) runSession(conn *websocket.Conn, r *room.Room) {
	join, ok := readJoin(conn)
	if !ok {
		_ = conn.Close()
		return
	}

	client := newClient(conn, h, r)
	user := r.HandleJoin(join.DisplayName, join.ResumeUserID, client)
	client.userID = user.ID
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// readJoin reads and validates the handshake frame. Malformed JSON
// closes silently; a well-formed frame of the wrong shape gets an error
// frame first so the client knows what to fix.
func readJoin(conn *websocket.Conn) (protocol.JoinFrame, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return protocol.JoinFrame{}, false
	}

	var join protocol.JoinFrame
	if err := json.Unmarshal(raw, &join); err != nil {
		return protocol.JoinFrame{}, false
	}
	if join.Type != protocol.FrameJoin || strings.TrimSpace(join.DisplayName) == "" {
		data, err := protocol.Marshal(protocol.NewError(protocol.CodeInvalidJoin,
			"First message must be {type: 'join', display_name: '...'}"))
		if err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		return protocol.JoinFrame{}, false
	}
	return join, true
}
