package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

func TestHandleSkipVote_HostSkipsInstantly(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	tr.addVideo(bob.ID, ytURL)
	v2 := tr.addVideo(bob.ID, ytURL)

	tr.mu.Lock()
	current := tr.sync.CurrentVideoID
	tr.mu.Unlock()

	tr.HandleSkipVote(alice.ID, current)

	tr.mu.Lock()
	assert.Equal(t, v2.ID, tr.sync.CurrentVideoID)
	tr.mu.Unlock()

	// Instant skip advances without a vote tally.
	_, voted := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	assert.False(t, voted)
}

func TestHandleSkipVote_RequesterSkipsInstantly(t *testing.T) {
	tr := newTestRoom()
	tr.join("Alice")
	bob := tr.join("Bob")
	v1 := tr.addVideo(bob.ID, ytURL)

	tr.HandleSkipVote(bob.ID, v1.ID)

	tr.mu.Lock()
	assert.False(t, tr.sync.HasVideo())
	tr.mu.Unlock()
}

func TestHandleSkipVote_ThresholdOverConnectedViewers(t *testing.T) {
	// One host plus three viewers at the default 0.5 threshold:
	// floor(3 * 0.5) = 1, so a single viewer vote advances.
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	tr.join("Carol")
	tr.join("Dave")
	v1 := tr.addVideo(alice.ID, ytURL)
	v2 := tr.addVideo(alice.ID, ytURL)

	tr.HandleSkipVote(bob.ID, v1.ID)

	rec, ok := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	require.True(t, ok)
	update := rec.frame.(protocol.SkipVoteUpdateFrame)
	assert.Equal(t, 1, update.Votes)
	assert.Equal(t, 1, update.Required)
	assert.Equal(t, []types.UserID{bob.ID}, update.Voters)

	tr.mu.Lock()
	assert.Equal(t, v2.ID, tr.sync.CurrentVideoID)
	tr.mu.Unlock()
}

func TestHandleSkipVote_BelowThresholdAccumulates(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	carol := tr.join("Carol")
	v1 := tr.addVideo(alice.ID, ytURL)

	// Raise the bar so two viewers must agree: ceil semantics are not
	// used, so required = floor(2 * 1.0) = 2.
	require.NoError(t, tr.UpdateSettings(alice.ID, protocol.SettingsPatch{SkipVoteThreshold: floatPtr(1.0)}))
	tr.registry.reset()

	tr.HandleSkipVote(bob.ID, v1.ID)

	rec, _ := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	update := rec.frame.(protocol.SkipVoteUpdateFrame)
	assert.Equal(t, 1, update.Votes)
	assert.Equal(t, 2, update.Required)
	tr.mu.Lock()
	assert.Equal(t, v1.ID, tr.sync.CurrentVideoID, "one vote of two is not enough")
	tr.mu.Unlock()

	tr.HandleSkipVote(carol.ID, v1.ID)

	tr.mu.Lock()
	assert.False(t, tr.sync.HasVideo())
	tr.mu.Unlock()
}

func TestHandleSkipVote_DuplicateVotesAreIdempotent(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	tr.join("Carol")
	v1 := tr.addVideo(alice.ID, ytURL)
	require.NoError(t, tr.UpdateSettings(alice.ID, protocol.SettingsPatch{SkipVoteThreshold: floatPtr(1.0)}))

	tr.HandleSkipVote(bob.ID, v1.ID)
	tr.HandleSkipVote(bob.ID, v1.ID)

	rec, _ := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	update := rec.frame.(protocol.SkipVoteUpdateFrame)
	assert.Equal(t, 1, update.Votes)
	tr.mu.Lock()
	assert.Equal(t, v1.ID, tr.sync.CurrentVideoID)
	tr.mu.Unlock()
}

func TestHandleSkipVote_StaleVoteIgnored(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	v1 := tr.addVideo(alice.ID, ytURL)
	tr.addVideo(alice.ID, ytURL)

	tr.AdvanceQueue() // v1 is gone before the vote lands
	tr.registry.reset()

	tr.HandleSkipVote(bob.ID, v1.ID)

	assert.Empty(t, tr.registry.frames())
}

func TestHandleSkipVote_UnknownUserIgnored(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	v1 := tr.addVideo(alice.ID, ytURL)

	tr.HandleSkipVote("ghostghost12", v1.ID)

	assert.Empty(t, tr.registry.frames())
	tr.mu.Lock()
	assert.Equal(t, v1.ID, tr.sync.CurrentVideoID)
	tr.mu.Unlock()
}

func TestHandleSkipVote_VotesClearedOnAdvance(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	carol := tr.join("Carol")
	v1 := tr.addVideo(alice.ID, ytURL)
	v2 := tr.addVideo(alice.ID, ytURL)
	require.NoError(t, tr.UpdateSettings(alice.ID, protocol.SettingsPatch{SkipVoteThreshold: floatPtr(1.0)}))
	tr.registry.reset()

	tr.HandleSkipVote(bob.ID, v1.ID)
	tr.AdvanceQueue()
	tr.registry.reset()

	// Bob's old vote must not carry over to v2.
	tr.HandleSkipVote(carol.ID, v2.ID)

	rec, ok := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	require.True(t, ok)
	update := rec.frame.(protocol.SkipVoteUpdateFrame)
	assert.Equal(t, 1, update.Votes)
	assert.Equal(t, []types.UserID{carol.ID}, update.Voters)
}

func TestHandleSkipVote_DisconnectedVoterPruned(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	carol := tr.join("Carol")
	v1 := tr.addVideo(alice.ID, ytURL)
	require.NoError(t, tr.UpdateSettings(alice.ID, protocol.SettingsPatch{SkipVoteThreshold: floatPtr(1.0)}))

	tr.HandleSkipVote(bob.ID, v1.ID)
	tr.HandleDisconnect(bob.ID) // Bob owns nothing: erased, vote dropped
	tr.registry.reset()

	tr.HandleSkipVote(carol.ID, v1.ID)

	rec, _ := tr.registry.lastOfType(protocol.FrameSkipVoteUpdate)
	update := rec.frame.(protocol.SkipVoteUpdateFrame)
	assert.Equal(t, 1, update.Votes)
	assert.Equal(t, []types.UserID{carol.ID}, update.Voters)
}

func TestRequiredSkipVotes_NeverBelowOne(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice") // host only, zero viewers
	tr.addVideo(alice.ID, ytURL)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.requiredSkipVotesLocked())
}
