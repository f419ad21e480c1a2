package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/tossemideia/synctube/internal/v1/ids"
	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metadata"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// opError is an operation failure carried to the originating socket with a
// stable wire code. Anything else wrapping it is an infrastructure bug.
type opError struct {
	code    string
	message string
}

func (e *opError) Error() string { return e.message }

func errOp(code, message string) error {
	return &opError{code: code, message: message}
}

// --- User Management ---

// AddUser registers a fresh user. The first user of a room becomes host.
func (r *Room) AddUser(displayName string) types.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.addUserLocked(displayName)
}

func (r *Room) addUserLocked(displayName string) *types.User {
	role := types.RoleViewer
	if len(r.users) == 0 {
		role = types.RoleHost
	}
	u := &types.User{
		ID:          ids.NewUserID(),
		DisplayName: cleanDisplayName(displayName),
		Role:        role,
		Connected:   true,
	}
	r.users[u.ID] = u
	return u
}

// HandleJoin runs the join sequence for a new session: resume or create
// the user, attach the sender, deliver the snapshot, then announce the
// arrival to everyone else. Returns the joined user.
func (r *Room) HandleJoin(displayName, resumeUserID string, sender types.FrameSender) types.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	var user *types.User
	if resumeUserID != "" {
		if u, ok := r.users[types.UserID(resumeUserID)]; ok && !u.Connected {
			u.Connected = true
			u.DisconnectedAt = time.Time{}
			u.DisplayName = cleanDisplayName(displayName)
			user = u
		}
	}
	if user == nil {
		user = r.addUserLocked(displayName)
	}

	r.conns.Attach(user.ID, sender)
	if user.Role == types.RoleHost {
		r.cancelHostGraceLocked()
	}

	// The snapshot must reach the joiner before any incremental frame.
	r.conns.Send(user.ID, r.fullStateLocked(user.ID))
	r.conns.BroadcastExcept(protocol.NewUserJoined(*user), user.ID)
	joinMsg := r.appendSystemChatLocked(fmt.Sprintf("%s entrou na sala.", user.DisplayName))
	r.conns.BroadcastExcept(protocol.NewChatMessage(joinMsg), user.ID)

	metrics.RoomUsers.WithLabelValues(string(r.ID)).Set(float64(r.conns.Count()))
	logging.Info(context.Background(), "User joined room",
		zap.String("room_id", string(r.ID)),
		zap.String("user_id", string(user.ID)),
		zap.String("role", string(user.Role)))
	return *user
}

// HandleDisconnect marks a user disconnected, announces the departure and
// applies the retention rule. A disconnecting host arms the grace timer.
func (r *Room) HandleDisconnect(userID types.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		r.conns.Detach(userID)
		return
	}

	user.Connected = false
	user.DisconnectedAt = r.now()
	r.conns.Detach(userID)

	if user.Role == types.RoleHost {
		r.armHostGraceLocked()
	}

	r.conns.Broadcast(protocol.NewUserLeft(userID))
	leaveMsg := r.appendSystemChatLocked(fmt.Sprintf("%s saiu da sala.", user.DisplayName))
	r.conns.Broadcast(protocol.NewChatMessage(leaveMsg))

	r.reapUserLocked(userID)

	if count := r.conns.Count(); count > 0 {
		metrics.RoomUsers.WithLabelValues(string(r.ID)).Set(float64(count))
	} else {
		metrics.RoomUsers.DeleteLabelValues(string(r.ID))
	}
}

// reapUserLocked erases a disconnected user who owns no queue items.
// Returns true if the user was erased.
func (r *Room) reapUserLocked(userID types.UserID) bool {
	user, ok := r.users[userID]
	if !ok || user.Connected {
		return false
	}
	if r.userOwnsQueueItemsLocked(userID) {
		return false
	}
	delete(r.users, userID)
	r.skipVotes.Delete(userID)
	return true
}

func (r *Room) userOwnsQueueItemsLocked(userID types.UserID) bool {
	for _, v := range r.queue {
		if v.AddedBy == userID {
			return true
		}
	}
	return false
}

func cleanDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > MaxDisplayNameLength {
		name = string(runes[:MaxDisplayNameLength])
	}
	return name
}

// --- Queue Management ---

// AddVideo parses the reference, resolves metadata and appends the video.
// The oracle round trip happens outside the room lock, so the adder's
// membership and the limit are re-checked before committing.
func (r *Room) AddVideo(ctx context.Context, userID types.UserID, rawURL string) error {
	ref, ok := ids.ParseVideoRef(rawURL)
	if !ok {
		return errOp(protocol.CodeInvalidURL, "Invalid video URL")
	}

	r.mu.Lock()
	if r.userQueueCountLocked(userID) >= r.settings.MaxVideosPerUser {
		r.mu.Unlock()
		return errOp(protocol.CodeQueueLimit, "You've reached the max videos per user")
	}
	r.mu.Unlock()

	meta := r.resolveMeta(ctx, ref)

	r.mu.Lock()
	defer r.mu.Unlock()

	// State may have moved while the oracle ran. An adder erased by the
	// retention rule must not leave a ghost owner on the queue.
	if _, ok := r.users[userID]; !ok {
		return errOp("", "User is no longer in the room")
	}
	if r.userQueueCountLocked(userID) >= r.settings.MaxVideosPerUser {
		return errOp(protocol.CodeQueueLimit, "You've reached the max videos per user")
	}

	video := types.Video{
		ID:          ids.NewVideoID(),
		ExternalRef: ref.ID,
		Title:       meta.Title,
		Thumbnail:   meta.Thumbnail,
		AddedBy:     userID,
		Kind:        ref.Kind,
		URL:         ref.URL,
	}
	r.queue = append(r.queue, video)

	wasIdle := !r.sync.HasVideo()
	if wasIdle {
		r.setCurrentVideoLocked(video)
	}

	r.conns.Broadcast(protocol.NewQueueUpdated(r.queueSnapshotLocked(), protocol.QueueActionAdd, &video))
	if wasIdle {
		r.broadcastSyncLocked()
	}

	metrics.VideosAdded.WithLabelValues(string(ref.Kind)).Inc()
	return nil
}

// resolveMeta fetches title and thumbnail. Direct videos never touch the
// oracle; oracle failures degrade to fallback values.
func (r *Room) resolveMeta(ctx context.Context, ref types.VideoRef) types.VideoMeta {
	if ref.Kind == types.VideoKindDirect {
		return types.VideoMeta{Title: ids.DirectTitle(ref.URL)}
	}
	meta, err := r.oracle.Lookup(ctx, ref.ID)
	if err != nil {
		logging.Warn(ctx, "Metadata lookup failed, using fallback",
			zap.String("room_id", string(r.ID)),
			zap.String("external_ref", ref.ID),
			zap.Error(err))
		return metadata.Fallback(ref)
	}
	return meta
}

func (r *Room) userQueueCountLocked(userID types.UserID) int {
	n := 0
	for _, v := range r.queue {
		if v.AddedBy == userID {
			n++
		}
	}
	return n
}

// RemoveVideo splices a video out of the queue. Only the host or the
// user who added it may remove it. The returned flag tells the caller to
// advance the queue because the currently-playing video was removed.
func (r *Room) RemoveVideo(userID types.UserID, videoID types.VideoID) (advance bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, v := range r.queue {
		if v.ID == videoID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, errOp(protocol.CodeRemoveFailed, "Video not found in queue")
	}

	video := r.queue[idx]
	if user, ok := r.users[userID]; ok && user.Role != types.RoleHost && video.AddedBy != userID {
		return false, errOp(protocol.CodeRemoveFailed, "Only the host or the requester can remove a video")
	}

	wasCurrent := r.sync.CurrentVideoID == videoID
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.reapUserLocked(video.AddedBy)

	return wasCurrent, nil
}

// ReorderQueue atomically replaces the queue order. Host only; the new
// ordering must be an exact permutation of the current queue.
func (r *Room) ReorderQueue(userID types.UserID, videoIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(userID) {
		return errOp(protocol.CodeReorderFailed, "Only the host can reorder the queue")
	}

	if len(videoIDs) != len(r.queue) {
		return errOp(protocol.CodeReorderFailed, "Video ID mismatch")
	}
	byID := make(map[types.VideoID]types.Video, len(r.queue))
	for _, v := range r.queue {
		byID[v.ID] = v
	}
	reordered := make([]types.Video, 0, len(videoIDs))
	seen := set.New[types.VideoID]()
	for _, raw := range videoIDs {
		id := types.VideoID(raw)
		v, ok := byID[id]
		if !ok || seen.Has(id) {
			return errOp(protocol.CodeReorderFailed, "Video ID mismatch")
		}
		seen.Insert(id)
		reordered = append(reordered, v)
	}
	r.queue = reordered
	return nil
}

// QueueSnapshot returns a copy of the queue for outbound frames.
func (r *Room) QueueSnapshot() []types.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queueSnapshotLocked()
}

// AdvanceQueue drops the currently-playing video and promotes the next
// head, or resets the sync state when the queue drains.
func (r *Room) AdvanceQueue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceQueueLocked()
}

func (r *Room) advanceQueueLocked() {
	// Advancement is id-based: after a reorder the current video may sit
	// at any index.
	idx := -1
	if r.sync.HasVideo() {
		for i, v := range r.queue {
			if v.ID == r.sync.CurrentVideoID {
				idx = i
				break
			}
		}
	}
	if idx >= 0 {
		removed := r.queue[idx]
		r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
		r.reapUserLocked(removed.AddedBy)
	}

	if len(r.queue) > 0 {
		r.setCurrentVideoLocked(r.queue[0])
	} else {
		r.resetSyncLocked()
	}

	r.conns.Broadcast(protocol.NewQueueUpdated(r.queueSnapshotLocked(), protocol.QueueActionAdvance, nil))
	r.broadcastSyncLocked()
}

// setCurrentVideoLocked promotes a video to the playing slot: position
// zero, playing, and a clean skip-vote slate.
func (r *Room) setCurrentVideoLocked(v types.Video) {
	r.sync = types.SyncState{
		CurrentVideoID: v.ID,
		ExternalRef:    v.ExternalRef,
		Kind:           v.Kind,
		URL:            v.URL,
		Timestamp:      0,
		IsPlaying:      true,
		LastUpdated:    r.now(),
	}
	r.skipVotes = set.New[types.UserID]()
}

func (r *Room) resetSyncLocked() {
	r.sync = types.NewSyncState(r.now())
	r.skipVotes = set.New[types.UserID]()
}
