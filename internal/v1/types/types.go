package types

import (
	"context"
	"time"
)

// --- Core Domain Types ---

// RoomID identifies a watch-party room (8 hex chars).
type RoomID string

// UserID identifies a user within a room (12 hex chars).
type UserID string

// VideoID identifies a queue entry (10 hex chars), distinct from the
// provider's own id for the underlying video.
type VideoID string

// Role defines the permission level of a user inside a room.
type Role string

const (
	RoleHost   Role = "host"   // Controls playback, queue order and settings
	RoleViewer Role = "viewer" // Watches and votes
)

// VideoKind tells clients which player to use for a video.
type VideoKind string

const (
	VideoKindYouTube VideoKind = "youtube"
	VideoKindDirect  VideoKind = "direct"
)

// User is a member of a room. A user may outlive its websocket
// connection: disconnected users are retained while they still own
// queue entries.
type User struct {
	ID             UserID    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Role           Role      `json:"role"`
	Connected      bool      `json:"connected"`
	DisconnectedAt time.Time `json:"-"` // zero while connected
}

// Video is one entry of a room's playback queue.
type Video struct {
	ID          VideoID   `json:"video_id"`
	ExternalRef string    `json:"external_ref"` // provider video id, empty for direct videos
	Title       string    `json:"title"`
	Thumbnail   string    `json:"thumbnail"`
	Duration    float64   `json:"duration"`
	AddedBy     UserID    `json:"added_by"`
	Kind        VideoKind `json:"video_type"`
	URL         string    `json:"url"` // full source URL for direct videos
}

// VideoRef is the parsed form of a user-supplied video reference.
type VideoRef struct {
	Kind VideoKind
	ID   string // provider id (youtube)
	URL  string // source url (direct)
}

// VideoMeta is what the metadata oracle resolves for an external ref.
type VideoMeta struct {
	Title     string
	Thumbnail string
}

// SyncState is the authoritative playback position of a room. Timestamp
// holds the position in seconds as of LastUpdated; the live position is
// derived with PositionAt.
type SyncState struct {
	CurrentVideoID VideoID
	ExternalRef    string
	Kind           VideoKind
	URL            string
	Timestamp      float64
	IsPlaying      bool
	LastUpdated    time.Time
}

// NewSyncState returns the empty state: nothing playing, position zero.
func NewSyncState(now time.Time) SyncState {
	return SyncState{Kind: VideoKindYouTube, LastUpdated: now}
}

// HasVideo reports whether a video is currently loaded.
func (s SyncState) HasVideo() bool {
	return s.CurrentVideoID != ""
}

// PositionAt extrapolates the playback position: while playing the
// position advances in real time, while paused it is frozen.
func (s SyncState) PositionAt(now time.Time) float64 {
	if s.IsPlaying {
		return s.Timestamp + now.Sub(s.LastUpdated).Seconds()
	}
	return s.Timestamp
}

// RoomSettings are the host-tunable knobs of a room.
type RoomSettings struct {
	MaxVideosPerUser  int     `json:"max_videos_per_user"`
	SkipVoteThreshold float64 `json:"skip_vote_threshold"`
}

// DefaultSettings returns the settings a fresh room starts with.
func DefaultSettings() RoomSettings {
	return RoomSettings{
		MaxVideosPerUser:  10,
		SkipVoteThreshold: 0.5,
	}
}

// ChatMessage is a chat entry, either from a user or from the system.
// Timestamp is POSIX seconds, matching the wire format.
type ChatMessage struct {
	UserID      UserID  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Message     string  `json:"message"`
	Timestamp   float64 `json:"timestamp"`
	IsSystem    bool    `json:"is_system"`
}

// UnixSeconds converts a time.Time to POSIX seconds with sub-second
// precision, the timestamp representation used on the wire.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// --- Shared Interfaces ---

// FrameSender delivers pre-encoded frames to a single connection.
// Implementations must never block: frames to a slow consumer are dropped.
type FrameSender interface {
	SendRaw(data []byte)
	Close()
}

// ConnectionRegistry tracks the live connections of one room and fans
// frames out to them. It carries no user state; the room does.
type ConnectionRegistry interface {
	Attach(id UserID, s FrameSender)
	Detach(id UserID)
	Send(id UserID, frame any)
	Broadcast(frame any)
	BroadcastExcept(frame any, exclude UserID)
	Count() int
	CloseAll()
}

// MetadataOracle resolves the title and thumbnail for an external video
// reference. Implementations are expected to be slow (network) and
// fallible; callers must not hold room state locked across a lookup.
type MetadataOracle interface {
	Lookup(ctx context.Context, externalRef string) (VideoMeta, error)
}
