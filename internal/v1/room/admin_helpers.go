package room

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// --- Playback Transport (host only) ---

// Play resumes playback from the frozen position.
func (r *Room) Play(userID types.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkTransportLocked(userID); err != nil {
		return err
	}
	r.sync.IsPlaying = true
	r.sync.LastUpdated = r.now()
	return nil
}

// Pause freezes playback at the host-reported position. The client
// timestamp is trusted: it is the host's authoritative view of position.
func (r *Room) Pause(userID types.UserID, timestamp float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkTransportLocked(userID); err != nil {
		return err
	}
	r.sync.IsPlaying = false
	r.sync.Timestamp = timestamp
	r.sync.LastUpdated = r.now()
	return nil
}

// Seek moves the position without changing the play/pause state.
func (r *Room) Seek(userID types.UserID, timestamp float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkTransportLocked(userID); err != nil {
		return err
	}
	r.sync.Timestamp = timestamp
	r.sync.LastUpdated = r.now()
	return nil
}

func (r *Room) checkTransportLocked(userID types.UserID) error {
	if !r.isHostLocked(userID) {
		return &opError{message: "Only the host can control playback"}
	}
	if !r.sync.HasVideo() {
		return &opError{message: "No video playing"}
	}
	return nil
}

// --- Settings (host only) ---

// UpdateSettings applies the whitelisted fields of a patch. Out-of-range
// values are silently ignored; accepted changes are broadcast.
func (r *Room) UpdateSettings(userID types.UserID, patch protocol.SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(userID) {
		return errOp(protocol.CodeSettingsFailed, "Only the host can change settings")
	}

	if patch.MaxVideosPerUser != nil {
		if v := *patch.MaxVideosPerUser; v >= 1 && v <= 50 {
			r.settings.MaxVideosPerUser = v
		}
	}
	if patch.SkipVoteThreshold != nil {
		if v := *patch.SkipVoteThreshold; v >= 0.1 && v <= 1.0 {
			r.settings.SkipVoteThreshold = v
		}
	}

	r.conns.Broadcast(protocol.NewSettingsUpdated(r.settings))
	return nil
}

// --- Host Grace & Transfer ---

// armHostGraceLocked starts the one-shot grace timer. Re-arming while a
// timer is pending is a no-op.
func (r *Room) armHostGraceLocked() {
	if r.hostGraceTimer != nil {
		return
	}
	r.hostGraceDeadline = r.now().Add(r.hostGracePeriod)
	r.hostGraceTimer = time.AfterFunc(r.hostGracePeriod, r.hostGraceExpired)
	logging.Info(context.Background(), "Host grace period armed",
		zap.String("room_id", string(r.ID)),
		zap.Duration("grace", r.hostGracePeriod))
}

func (r *Room) cancelHostGraceLocked() {
	if r.hostGraceTimer == nil {
		return
	}
	r.hostGraceTimer.Stop()
	r.hostGraceTimer = nil
	r.hostGraceDeadline = time.Time{}
}

// hostGraceExpired fires when the grace window closes. The host role
// transfers unless a connected host exists by then.
func (r *Room) hostGraceExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hostGraceTimer = nil
	r.hostGraceDeadline = time.Time{}

	if host := r.hostLocked(); host != nil && host.Connected {
		return
	}
	r.transferHostLocked()
}

// transferHostLocked demotes the current host and promotes the connected
// user with the lexicographically smallest id. With nobody connected the
// transfer aborts and the room waits for the reaper.
func (r *Room) transferHostLocked() {
	if old := r.hostLocked(); old != nil {
		old.Role = types.RoleViewer
	}

	connected := r.connectedUsersLocked()
	if len(connected) == 0 {
		return
	}
	sort.Slice(connected, func(i, j int) bool { return connected[i].ID < connected[j].ID })
	newHost := connected[0]
	newHost.Role = types.RoleHost

	r.conns.Broadcast(protocol.NewHostChanged(*newHost))
	msg := r.appendSystemChatLocked(fmt.Sprintf("%s agora é o host.", newHost.DisplayName))
	r.conns.Broadcast(protocol.NewChatMessage(msg))

	metrics.HostTransfers.Inc()
	logging.Info(context.Background(), "Host role transferred",
		zap.String("room_id", string(r.ID)),
		zap.String("user_id", string(newHost.ID)))
}
