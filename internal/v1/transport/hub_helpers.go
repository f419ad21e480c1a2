package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// Registry fans frames out to a room's live connections. It implements
// types.ConnectionRegistry; the room core never touches a socket.
type Registry struct {
	mu      sync.RWMutex
	senders map[types.UserID]types.FrameSender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[types.UserID]types.FrameSender)}
}

func (reg *Registry) Attach(id types.UserID, s types.FrameSender) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	// A second session for the same user replaces the first.
	if old, ok := reg.senders[id]; ok {
		old.Close()
	}
	reg.senders[id] = s
}

func (reg *Registry) Detach(id types.UserID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.senders, id)
}

// Send serializes a frame for one user. Unknown users are a no-op: the
// socket may have died between the operation and the fan-out.
func (reg *Registry) Send(id types.UserID, frame any) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal frame", zap.Error(err))
		return
	}
	reg.mu.RLock()
	sender, ok := reg.senders[id]
	reg.mu.RUnlock()
	if ok {
		sender.SendRaw(data)
	}
}

// Broadcast serializes a frame once and fans it out to every connection.
func (reg *Registry) Broadcast(frame any) {
	reg.broadcast(frame, "")
}

// BroadcastExcept fans a frame out to everyone but one user.
func (reg *Registry) BroadcastExcept(frame any, exclude types.UserID) {
	reg.broadcast(frame, exclude)
}

func (reg *Registry) broadcast(frame any, exclude types.UserID) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal frame", zap.Error(err))
		return
	}
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for id, sender := range reg.senders {
		if id == exclude {
			continue
		}
		sender.SendRaw(data)
	}
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.senders)
}

func (reg *Registry) CloseAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, sender := range reg.senders {
		sender.Close()
		delete(reg.senders, id)
	}
}

// originAllowed checks the Origin header against the allow-list. Absent
// origins pass: non-browser clients send none.
func originAllowed(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	logging.Warn(context.Background(), "Origin not in allowed list",
		zap.String("origin", origin), zap.Strings("allowed_origins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}
