package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// Route dispatches one raw client frame to the matching room operation.
// Invalid JSON and wrong-shape payloads are dropped silently; operation
// failures go back to the originator as an error frame with a stable code.
func (r *Room) Route(ctx context.Context, userID types.UserID, raw []byte) {
	frameType, err := protocol.DecodeType(raw)
	if err != nil {
		logging.GetLogger().Debug("Dropping malformed frame",
			zap.String("room_id", string(r.ID)),
			zap.String("user_id", string(userID)))
		return
	}
	if frameType == "" {
		r.sendError(userID, protocol.CodeMissingType, "Message must include 'type'")
		return
	}

	start := time.Now()
	status := "ok"
	defer func() {
		metrics.FramesProcessed.WithLabelValues(string(frameType), status).Inc()
		metrics.FrameProcessingDuration.WithLabelValues(string(frameType)).Observe(time.Since(start).Seconds())
	}()

	switch frameType {
	case protocol.FrameAddVideo:
		var frame protocol.AddVideoFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.AddVideo(ctx, userID, frame.URL); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeInvalidURL, err)
		}

	case protocol.FrameRemoveVideo:
		var frame protocol.RemoveVideoFrame
		if !decode(raw, &frame) {
			return
		}
		advance, err := r.RemoveVideo(userID, types.VideoID(frame.VideoID))
		if err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeRemoveFailed, err)
			return
		}
		if advance {
			r.AdvanceQueue()
		}
		r.broadcastQueue(protocol.QueueActionRemove)

	case protocol.FrameReorderQueue:
		var frame protocol.ReorderQueueFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.ReorderQueue(userID, frame.VideoIDs); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeReorderFailed, err)
			return
		}
		r.broadcastQueue(protocol.QueueActionReorder)

	case protocol.FrameSkipVote:
		var frame protocol.SkipVoteFrame
		if !decode(raw, &frame) {
			return
		}
		r.HandleSkipVote(userID, types.VideoID(frame.VideoID))

	case protocol.FrameChatMessage:
		var frame protocol.ChatFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.HandleChat(userID, frame.Message); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeChatFailed, err)
		}

	case protocol.FramePlay:
		if err := r.Play(userID); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodePlayFailed, err)
			return
		}
		r.BroadcastSync()

	case protocol.FramePause:
		var frame protocol.TimestampFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.Pause(userID, frame.Timestamp); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodePauseFailed, err)
			return
		}
		r.BroadcastSync()

	case protocol.FrameSeek:
		var frame protocol.TimestampFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.Seek(userID, frame.Timestamp); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeSeekFailed, err)
			return
		}
		r.BroadcastSync()

	case protocol.FrameVideoEnded:
		r.AdvanceQueue()

	case protocol.FrameSyncReport:
		// Reserved for client telemetry.

	case protocol.FrameUpdateSettings:
		var frame protocol.UpdateSettingsFrame
		if !decode(raw, &frame) {
			return
		}
		if err := r.UpdateSettings(userID, frame.Settings); err != nil {
			status = "error"
			r.sendOpError(userID, protocol.CodeSettingsFailed, err)
		}

	case protocol.FrameJoin:
		// A second join on an established session is meaningless.
		status = "error"
		r.sendError(userID, protocol.CodeUnknownType, fmt.Sprintf("Unknown message type: %s", frameType))

	default:
		status = "error"
		r.sendError(userID, protocol.CodeUnknownType, fmt.Sprintf("Unknown message type: %s", frameType))
	}
}

func decode(raw []byte, frame any) bool {
	return json.Unmarshal(raw, frame) == nil
}

func (r *Room) broadcastQueue(action protocol.QueueAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns.Broadcast(protocol.NewQueueUpdated(r.queueSnapshotLocked(), action, nil))
}

// sendOpError delivers an operation failure to its originator. Errors
// that carry no wire code fall back to the operation's default.
func (r *Room) sendOpError(userID types.UserID, defaultCode string, err error) {
	code := defaultCode
	var op *opError
	if errors.As(err, &op) && op.code != "" {
		code = op.code
	}
	r.sendError(userID, code, err.Error())
}

func (r *Room) sendError(userID types.UserID, code, message string) {
	r.conns.Send(userID, protocol.NewError(code, message))
}
