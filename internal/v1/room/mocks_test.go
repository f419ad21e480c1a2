package room

import (
	"context"
	"errors"
	"sync"

	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// frameRecord is one outbound frame captured by the fake registry. An
// empty target means a broadcast; exclude is set for BroadcastExcept.
type frameRecord struct {
	target  types.UserID
	exclude types.UserID
	frame   any
}

// fakeRegistry implements types.ConnectionRegistry and records every
// outbound frame in commit order.
type fakeRegistry struct {
	mu       sync.Mutex
	attached map[types.UserID]types.FrameSender
	records  []frameRecord
	closed   bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{attached: make(map[types.UserID]types.FrameSender)}
}

func (f *fakeRegistry) Attach(id types.UserID, s types.FrameSender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[id] = s
}

func (f *fakeRegistry) Detach(id types.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attached, id)
}

func (f *fakeRegistry) Send(id types.UserID, frame any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, frameRecord{target: id, frame: frame})
}

func (f *fakeRegistry) Broadcast(frame any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, frameRecord{frame: frame})
}

func (f *fakeRegistry) BroadcastExcept(frame any, exclude types.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, frameRecord{exclude: exclude, frame: frame})
}

func (f *fakeRegistry) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attached)
}

func (f *fakeRegistry) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.attached = make(map[types.UserID]types.FrameSender)
}

// frames returns a snapshot of all captured records.
func (f *fakeRegistry) frames() []frameRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frameRecord, len(f.records))
	copy(out, f.records)
	return out
}

// reset drops captured records, keeping attachments.
func (f *fakeRegistry) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
}

// frameTypes lists the wire type of every captured frame, in order.
func (f *fakeRegistry) frameTypes() []protocol.FrameType {
	var out []protocol.FrameType
	for _, rec := range f.frames() {
		out = append(out, frameTypeOf(rec.frame))
	}
	return out
}

// lastOfType returns the most recent captured frame of the given type.
func (f *fakeRegistry) lastOfType(t protocol.FrameType) (frameRecord, bool) {
	records := f.frames()
	for i := len(records) - 1; i >= 0; i-- {
		if frameTypeOf(records[i].frame) == t {
			return records[i], true
		}
	}
	return frameRecord{}, false
}

func frameTypeOf(frame any) protocol.FrameType {
	switch frame.(type) {
	case protocol.RoomStateFrame:
		return protocol.FrameRoomState
	case protocol.UserJoinedFrame:
		return protocol.FrameUserJoined
	case protocol.UserLeftFrame:
		return protocol.FrameUserLeft
	case protocol.HostChangedFrame:
		return protocol.FrameHostChanged
	case protocol.QueueUpdatedFrame:
		return protocol.FrameQueueUpdated
	case protocol.SyncFrame:
		return protocol.FrameSync
	case protocol.SettingsUpdatedFrame:
		return protocol.FrameSettingsUpdated
	case protocol.SkipVoteUpdateFrame:
		return protocol.FrameSkipVoteUpdate
	case protocol.ChatMessageFrame:
		return protocol.FrameChatMessage
	case protocol.ErrorFrame:
		return protocol.FrameError
	}
	return ""
}

// nopSender satisfies types.FrameSender for joins where the outbound
// bytes are irrelevant.
type nopSender struct{}

func (nopSender) SendRaw([]byte) {}
func (nopSender) Close()         {}

// fakeOracle implements types.MetadataOracle with scripted results.
type fakeOracle struct {
	mu     sync.Mutex
	meta   types.VideoMeta
	err    error
	calls  int
	onCall func()
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{meta: types.VideoMeta{Title: "Stub Title", Thumbnail: "https://thumbs.test/x.jpg"}}
}

func (o *fakeOracle) Lookup(_ context.Context, _ string) (types.VideoMeta, error) {
	o.mu.Lock()
	o.calls++
	hook := o.onCall
	meta, err := o.meta, o.err
	o.mu.Unlock()
	if hook != nil {
		hook()
	}
	return meta, err
}

func (o *fakeOracle) fail() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = errors.New("oembed unavailable")
}

// --- Test Room Construction ---

const ytURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type testRoom struct {
	*Room
	registry *fakeRegistry
	oracle   *fakeOracle
}

func newTestRoom() *testRoom {
	registry := newFakeRegistry()
	oracle := newFakeOracle()
	return &testRoom{
		Room:     NewRoom("roomtest", registry, oracle),
		registry: registry,
		oracle:   oracle,
	}
}

// join adds a connected user through the full join path and clears the
// join chatter from the record.
func (tr *testRoom) join(name string) types.User {
	u := tr.HandleJoin(name, "", nopSender{})
	tr.registry.reset()
	return u
}

// addVideo queues a video for the user and returns it, clearing records.
func (tr *testRoom) addVideo(userID types.UserID, url string) types.Video {
	if err := tr.AddVideo(context.Background(), userID, url); err != nil {
		panic(err)
	}
	queue := tr.QueueSnapshot()
	video := queue[len(queue)-1]
	tr.registry.reset()
	return video
}
