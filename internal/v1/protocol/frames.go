// Package protocol defines the JSON frames exchanged over a room
// websocket. Client frames are flat objects tagged by "type"; the
// dispatcher probes the tag first and then decodes the matching payload
// struct, so unknown tags fall through without touching payload fields.
package protocol

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/tossemideia/synctube/internal/v1/types"
)

// FrameType tags every frame on the wire.
type FrameType string

// Client → server frame types.
const (
	FrameJoin           FrameType = "join"
	FrameAddVideo       FrameType = "add_video"
	FrameRemoveVideo    FrameType = "remove_video"
	FrameReorderQueue   FrameType = "reorder_queue"
	FrameSkipVote       FrameType = "skip_vote"
	FramePlay           FrameType = "play"
	FramePause          FrameType = "pause"
	FrameSeek           FrameType = "seek"
	FrameVideoEnded     FrameType = "video_ended"
	FrameSyncReport     FrameType = "sync_report"
	FrameUpdateSettings FrameType = "update_settings"
)

// Server → client frame types. FrameChatMessage travels both ways.
const (
	FrameRoomState       FrameType = "room_state"
	FrameUserJoined      FrameType = "user_joined"
	FrameUserLeft        FrameType = "user_left"
	FrameHostChanged     FrameType = "host_changed"
	FrameQueueUpdated    FrameType = "queue_updated"
	FrameSync            FrameType = "sync"
	FrameSettingsUpdated FrameType = "settings_updated"
	FrameSkipVoteUpdate  FrameType = "skip_vote_update"
	FrameChatMessage     FrameType = "chat_message"
	FrameError           FrameType = "error"
)

// Stable error codes carried by error frames.
const (
	CodeMissingType    = "missing_type"
	CodeUnknownType    = "unknown_type"
	CodeInvalidJoin    = "invalid_join"
	CodeInvalidURL     = "invalid_url"
	CodeQueueLimit     = "queue_limit"
	CodeRemoveFailed   = "remove_failed"
	CodeReorderFailed  = "reorder_failed"
	CodePlayFailed     = "play_failed"
	CodePauseFailed    = "pause_failed"
	CodeSeekFailed     = "seek_failed"
	CodeChatFailed     = "chat_failed"
	CodeSettingsFailed = "settings_failed"
)

// CloseRoomNotFound is sent when a websocket joins an unknown room id.
const CloseRoomNotFound = 4004

// QueueAction says why a queue_updated frame was emitted.
type QueueAction string

const (
	QueueActionAdd     QueueAction = "add"
	QueueActionRemove  QueueAction = "remove"
	QueueActionReorder QueueAction = "reorder"
	QueueActionAdvance QueueAction = "advance"
)

// Marshal encodes a frame for the wire.
func Marshal(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// --- Client → server payloads ---

// Envelope is the minimal probe used to read the type tag.
type Envelope struct {
	Type FrameType `json:"type"`
}

// DecodeType extracts the frame type tag. An absent tag decodes to "".
func DecodeType(raw []byte) (FrameType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// JoinFrame must be the first frame of a session. ResumeUserID optionally
// reclaims a disconnected user record from an earlier session.
type JoinFrame struct {
	Type         FrameType `json:"type"`
	DisplayName  string    `json:"display_name"`
	ResumeUserID string    `json:"resume_user_id"`
}

type AddVideoFrame struct {
	URL string `json:"url"`
}

type RemoveVideoFrame struct {
	VideoID string `json:"video_id"`
}

type ReorderQueueFrame struct {
	VideoIDs []string `json:"video_ids"`
}

type SkipVoteFrame struct {
	VideoID string `json:"video_id"`
}

type ChatFrame struct {
	Message string `json:"message"`
}

// TimestampFrame carries the client-reported position for pause and seek.
type TimestampFrame struct {
	Timestamp float64 `json:"timestamp"`
}

// SettingsPatch holds the whitelisted settings fields; nil means "leave
// unchanged". Out-of-range values are ignored, not errors.
type SettingsPatch struct {
	MaxVideosPerUser  *int     `json:"max_videos_per_user"`
	SkipVoteThreshold *float64 `json:"skip_vote_threshold"`
}

type UpdateSettingsFrame struct {
	Settings SettingsPatch `json:"settings"`
}

// --- Server → client frames ---

// SyncPayload is the wire form of a room's SyncState. Timestamp is
// already extrapolated to the moment of serialization.
type SyncPayload struct {
	CurrentVideoID *string         `json:"current_video_id"`
	ExternalRef    *string         `json:"external_ref"`
	Timestamp      float64         `json:"timestamp"`
	IsPlaying      bool            `json:"is_playing"`
	LastUpdated    float64         `json:"last_updated"`
	VideoType      types.VideoKind `json:"video_type"`
	URL            string          `json:"url"`
}

// NewSyncPayload converts a SyncState for the wire, extrapolating the
// position to now.
func NewSyncPayload(s types.SyncState, now time.Time) SyncPayload {
	p := SyncPayload{
		Timestamp:   s.PositionAt(now),
		IsPlaying:   s.IsPlaying,
		LastUpdated: types.UnixSeconds(s.LastUpdated),
		VideoType:   s.Kind,
		URL:         s.URL,
	}
	if s.HasVideo() {
		id := string(s.CurrentVideoID)
		p.CurrentVideoID = &id
		ref := s.ExternalRef
		p.ExternalRef = &ref
	}
	return p
}

type RoomStateFrame struct {
	Type        FrameType           `json:"type"`
	RoomID      types.RoomID        `json:"room_id"`
	Users       []types.User        `json:"users"`
	Queue       []types.Video       `json:"queue"`
	Sync        SyncPayload         `json:"sync"`
	Settings    types.RoomSettings  `json:"settings"`
	ChatHistory []types.ChatMessage `json:"chat_history"`
	YourUserID  types.UserID        `json:"your_user_id"`
	YourRole    types.Role          `json:"your_role"`
	ServerTime  float64             `json:"server_time"`
}

type UserJoinedFrame struct {
	Type FrameType  `json:"type"`
	User types.User `json:"user"`
}

func NewUserJoined(u types.User) UserJoinedFrame {
	return UserJoinedFrame{Type: FrameUserJoined, User: u}
}

type UserLeftFrame struct {
	Type   FrameType    `json:"type"`
	UserID types.UserID `json:"user_id"`
}

func NewUserLeft(id types.UserID) UserLeftFrame {
	return UserLeftFrame{Type: FrameUserLeft, UserID: id}
}

type HostChangedFrame struct {
	Type        FrameType    `json:"type"`
	NewHostID   types.UserID `json:"new_host_id"`
	NewHostName string       `json:"new_host_name"`
}

func NewHostChanged(u types.User) HostChangedFrame {
	return HostChangedFrame{Type: FrameHostChanged, NewHostID: u.ID, NewHostName: u.DisplayName}
}

type QueueUpdatedFrame struct {
	Type   FrameType     `json:"type"`
	Queue  []types.Video `json:"queue"`
	Action QueueAction   `json:"action"`
	Video  *types.Video  `json:"video,omitempty"`
}

// NewQueueUpdated builds a queue_updated frame; video is only attached
// for the add action.
func NewQueueUpdated(queue []types.Video, action QueueAction, video *types.Video) QueueUpdatedFrame {
	return QueueUpdatedFrame{Type: FrameQueueUpdated, Queue: queue, Action: action, Video: video}
}

type SyncFrame struct {
	Type       FrameType   `json:"type"`
	Sync       SyncPayload `json:"sync"`
	ServerTime float64     `json:"server_time"`
}

func NewSync(s types.SyncState, now time.Time) SyncFrame {
	return SyncFrame{
		Type:       FrameSync,
		Sync:       NewSyncPayload(s, now),
		ServerTime: types.UnixSeconds(now),
	}
}

type SettingsUpdatedFrame struct {
	Type     FrameType          `json:"type"`
	Settings types.RoomSettings `json:"settings"`
}

func NewSettingsUpdated(s types.RoomSettings) SettingsUpdatedFrame {
	return SettingsUpdatedFrame{Type: FrameSettingsUpdated, Settings: s}
}

type SkipVoteUpdateFrame struct {
	Type     FrameType      `json:"type"`
	VideoID  types.VideoID  `json:"video_id"`
	Votes    int            `json:"votes"`
	Required int            `json:"required"`
	Voters   []types.UserID `json:"voters"`
}

func NewSkipVoteUpdate(videoID types.VideoID, votes, required int, voters []types.UserID) SkipVoteUpdateFrame {
	return SkipVoteUpdateFrame{
		Type:     FrameSkipVoteUpdate,
		VideoID:  videoID,
		Votes:    votes,
		Required: required,
		Voters:   voters,
	}
}

// ChatMessageFrame flattens the message fields beside the type tag.
type ChatMessageFrame struct {
	Type FrameType `json:"type"`
	types.ChatMessage
}

func NewChatMessage(m types.ChatMessage) ChatMessageFrame {
	return ChatMessageFrame{Type: FrameChatMessage, ChatMessage: m}
}

type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func NewError(code, message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Code: code, Message: message}
}
