package room

import (
	"sort"

	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// --- Lookups ---

func (r *Room) hostLocked() *types.User {
	for _, u := range r.users {
		if u.Role == types.RoleHost {
			return u
		}
	}
	return nil
}

func (r *Room) isHostLocked(userID types.UserID) bool {
	u, ok := r.users[userID]
	return ok && u.Role == types.RoleHost
}

func (r *Room) connectedUsersLocked() []*types.User {
	var connected []*types.User
	for _, u := range r.users {
		if u.Connected {
			connected = append(connected, u)
		}
	}
	return connected
}

func (r *Room) connectedViewersLocked() []*types.User {
	var viewers []*types.User
	for _, u := range r.users {
		if u.Connected && u.Role == types.RoleViewer {
			viewers = append(viewers, u)
		}
	}
	return viewers
}

func (r *Room) currentVideoLocked() *types.Video {
	if !r.sync.HasVideo() {
		return nil
	}
	for i := range r.queue {
		if r.queue[i].ID == r.sync.CurrentVideoID {
			return &r.queue[i]
		}
	}
	return nil
}

// --- Skip Voting ---

// HandleSkipVote registers a vote against the current video. The host and
// the video's requester skip instantly; everyone else counts toward the
// threshold over connected viewers. Stale votes are ignored.
func (r *Room) HandleSkipVote(userID types.UserID, videoID types.VideoID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sync.CurrentVideoID != videoID {
		return
	}
	user, ok := r.users[userID]
	if !ok {
		return
	}

	metrics.SkipVotes.Inc()

	current := r.currentVideoLocked()
	if user.Role == types.RoleHost || (current != nil && current.AddedBy == userID) {
		r.advanceQueueLocked()
		return
	}

	r.skipVotes.Insert(userID)
	required := r.requiredSkipVotesLocked()

	r.conns.Broadcast(protocol.NewSkipVoteUpdate(videoID, r.skipVotes.Len(), required, r.votersLocked()))

	if r.skipVotes.Len() >= required {
		r.advanceQueueLocked()
	}
}

// requiredSkipVotesLocked computes the vote threshold: a fraction of the
// connected viewers, never below one.
func (r *Room) requiredSkipVotesLocked() int {
	viewers := len(r.connectedViewersLocked())
	required := int(float64(viewers) * r.settings.SkipVoteThreshold)
	if required < 1 {
		required = 1
	}
	return required
}

func (r *Room) votersLocked() []types.UserID {
	voters := r.skipVotes.UnsortedList()
	sort.Slice(voters, func(i, j int) bool { return voters[i] < voters[j] })
	return voters
}
