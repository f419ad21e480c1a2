package room

import (
	"html"
	"strings"

	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// HandleChat validates, sanitizes and broadcasts a chat message.
func (r *Room) HandleChat(userID types.UserID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return errOp(protocol.CodeChatFailed, "Unknown user")
	}

	clean := sanitizeMessage(message)
	if clean == "" {
		return errOp(protocol.CodeChatFailed, "Empty message")
	}

	msg := types.ChatMessage{
		UserID:      userID,
		DisplayName: user.DisplayName,
		Message:     clean,
		Timestamp:   types.UnixSeconds(r.now()),
	}
	r.appendChatLocked(msg)
	r.conns.Broadcast(protocol.NewChatMessage(msg))
	return nil
}

// sanitizeMessage trims, truncates and entity-escapes a raw message.
// Truncation happens before escaping so an entity expansion can exceed
// the raw cap, matching the wire contract clients already handle.
func sanitizeMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if runes := []rune(trimmed); len(runes) > MaxMessageLength {
		trimmed = string(runes[:MaxMessageLength])
	}
	return html.EscapeString(trimmed)
}

// appendChatLocked appends to the bounded history, dropping the oldest
// entries past the cap.
func (r *Room) appendChatLocked(msg types.ChatMessage) {
	r.chatHistory.PushBack(msg)
	for r.chatHistory.Len() > ChatHistoryLimit {
		r.chatHistory.Remove(r.chatHistory.Front())
	}
	metrics.ChatMessages.Inc()
}

// appendSystemChatLocked records a system announcement and returns it for
// broadcasting.
func (r *Room) appendSystemChatLocked(text string) types.ChatMessage {
	msg := types.ChatMessage{
		UserID:      SystemUserID,
		DisplayName: SystemDisplayName,
		Message:     text,
		Timestamp:   types.UnixSeconds(r.now()),
		IsSystem:    true,
	}
	r.appendChatLocked(msg)
	return msg
}

func (r *Room) chatSnapshotLocked() []types.ChatMessage {
	history := make([]types.ChatMessage, 0, r.chatHistory.Len())
	for e := r.chatHistory.Front(); e != nil; e = e.Next() {
		if msg, ok := e.Value.(types.ChatMessage); ok {
			history = append(history, msg)
		}
	}
	return history
}
