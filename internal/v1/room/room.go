// Package room implements the per-room coordination core: users, the
// playback queue, the authoritative sync state, skip voting, chat history
// and host transfer. All state is in-memory and owned by a single Room;
// every mutation happens under the room mutex, and outbound frames leave
// through the ConnectionRegistry so slow sockets never block an operation.
package room

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/set"

	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

const (
	// ChatHistoryLimit bounds the retained chat history per room.
	ChatHistoryLimit = 100
	// MaxMessageLength caps a chat message before escaping.
	MaxMessageLength = 500
	// MaxDisplayNameLength caps a user display name.
	MaxDisplayNameLength = 30
	// HostGracePeriod is how long a disconnected host keeps the role.
	HostGracePeriod = 60 * time.Second
	// EmptyRoomMinAge keeps fresh rooms alive long enough for the first join.
	EmptyRoomMinAge = 30 * time.Second
)

// SystemUserID and SystemDisplayName identify system chat messages.
const (
	SystemUserID      types.UserID = "system"
	SystemDisplayName              = "Sistema"
)

// Room is the aggregate root for one watch-party session.
type Room struct {
	ID types.RoomID

	mu          sync.Mutex
	users       map[types.UserID]*types.User
	queue       []types.Video
	sync        types.SyncState
	settings    types.RoomSettings
	chatHistory *list.List
	skipVotes   set.Set[types.UserID]
	conns       types.ConnectionRegistry
	oracle      types.MetadataOracle
	createdAt   time.Time

	hostGraceTimer    *time.Timer
	hostGraceDeadline time.Time

	hostGracePeriod time.Duration
	emptyRoomMinAge time.Duration
	now             func() time.Time
}

// NewRoom builds a room with the default grace and reaping timings.
func NewRoom(id types.RoomID, conns types.ConnectionRegistry, oracle types.MetadataOracle) *Room {
	return NewRoomWithTimings(id, conns, oracle, HostGracePeriod, EmptyRoomMinAge)
}

// NewRoomWithTimings builds a room with explicit host-grace and empty-room
// timings. Production code uses the configured values; tests shrink them.
func NewRoomWithTimings(id types.RoomID, conns types.ConnectionRegistry, oracle types.MetadataOracle, gracePeriod, emptyRoomMinAge time.Duration) *Room {
	now := time.Now
	return &Room{
		ID:              id,
		users:           make(map[types.UserID]*types.User),
		sync:            types.NewSyncState(now()),
		settings:        types.DefaultSettings(),
		chatHistory:     list.New(),
		skipVotes:       set.New[types.UserID](),
		conns:           conns,
		oracle:          oracle,
		createdAt:       now(),
		hostGracePeriod: gracePeriod,
		emptyRoomMinAge: emptyRoomMinAge,
		now:             now,
	}
}

// Heartbeat broadcasts the current sync extrapolation to a room with at
// least one live connection. Called by the hub on every tick.
func (r *Room) Heartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns.Count() == 0 {
		return
	}
	r.broadcastSyncLocked()
	metrics.HeartbeatBroadcasts.Inc()
}

// BroadcastSync pushes a fresh sync frame to every connection. The
// dispatcher calls this after a successful playback mutation.
func (r *Room) BroadcastSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastSyncLocked()
}

func (r *Room) broadcastSyncLocked() {
	r.conns.Broadcast(protocol.NewSync(r.sync, r.now()))
}

// IsEmpty reports whether the room qualifies for reaping: no live
// connections, an empty queue, and old enough that a first join is not
// still in flight.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns.Count() > 0 || len(r.queue) > 0 {
		return false
	}
	return r.now().Sub(r.createdAt) > r.emptyRoomMinAge
}

// Close detaches every connection and stops the grace timer. Used at hub
// shutdown and when a room is reaped.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelHostGraceLocked()
	r.conns.CloseAll()
}

// Summary is the listing row exposed by the REST surface.
type Summary struct {
	RoomID         types.RoomID
	HostName       string
	ConnectedUsers int
	QueueLength    int
	CurrentVideo   *string
}

// Summary snapshots the room for /api/rooms. The host name falls back to
// "???" while the room is hostless (grace window or pre-transfer).
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		RoomID:         r.ID,
		HostName:       "???",
		ConnectedUsers: len(r.connectedUsersLocked()),
		QueueLength:    len(r.queue),
	}
	if host := r.hostLocked(); host != nil {
		s.HostName = host.DisplayName
	}
	if v := r.currentVideoLocked(); v != nil {
		title := v.Title
		s.CurrentVideo = &title
	}
	return s
}

// fullStateLocked builds the one-shot room_state snapshot for a joiner.
func (r *Room) fullStateLocked(userID types.UserID) protocol.RoomStateFrame {
	now := r.now()
	role := types.RoleViewer
	if u, ok := r.users[userID]; ok {
		role = u.Role
	}
	return protocol.RoomStateFrame{
		Type:        protocol.FrameRoomState,
		RoomID:      r.ID,
		Users:       r.usersSnapshotLocked(),
		Queue:       r.queueSnapshotLocked(),
		Sync:        protocol.NewSyncPayload(r.sync, now),
		Settings:    r.settings,
		ChatHistory: r.chatSnapshotLocked(),
		YourUserID:  userID,
		YourRole:    role,
		ServerTime:  types.UnixSeconds(now),
	}
}

func (r *Room) usersSnapshotLocked() []types.User {
	users := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Room) queueSnapshotLocked() []types.Video {
	queue := make([]types.Video, len(r.queue))
	copy(queue, r.queue)
	return queue
}
