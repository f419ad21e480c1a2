package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tossemideia/synctube/internal/v1/protocol"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// Host-gated operations must reject viewers and disconnected ex-hosts
// alike; the role, not history, decides.
func TestPermissions_HostGatedOperations(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	v1 := tr.addVideo(alice.ID, ytURL)

	ops := map[string]func(types.UserID) error{
		"play":     func(id types.UserID) error { return tr.Play(id) },
		"pause":    func(id types.UserID) error { return tr.Pause(id, 1) },
		"seek":     func(id types.UserID) error { return tr.Seek(id, 1) },
		"reorder":  func(id types.UserID) error { return tr.ReorderQueue(id, []string{string(v1.ID)}) },
		"settings": func(id types.UserID) error { return tr.UpdateSettings(id, protocol.SettingsPatch{}) },
	}

	for name, op := range ops {
		assert.Error(t, op(bob.ID), "viewer must not %s", name)
		assert.NoError(t, op(alice.ID), "host must %s", name)
	}
}

func TestPermissions_PromotedHostGainsControl(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	tr.addVideo(bob.ID, ytURL)

	require.Error(t, tr.Play(bob.ID))

	tr.mu.Lock()
	tr.transferHostLocked()
	tr.mu.Unlock()

	// The transfer promotes the smallest connected id, which may be
	// either user; assert on roles rather than identities.
	tr.mu.Lock()
	host := tr.hostLocked()
	tr.mu.Unlock()
	require.NotNil(t, host)

	assert.NoError(t, tr.Play(host.ID))
	for _, u := range []types.User{alice, bob} {
		if u.ID != host.ID {
			assert.Error(t, tr.Play(u.ID))
		}
	}
}

func TestPermissions_DemotedHostLosesControl(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice")
	bob := tr.join("Bob")
	tr.addVideo(alice.ID, ytURL)

	tr.mu.Lock()
	tr.users[alice.ID].Role = types.RoleViewer
	tr.users[bob.ID].Role = types.RoleHost
	tr.mu.Unlock()

	assert.Error(t, tr.Seek(alice.ID, 5))
	assert.NoError(t, tr.Seek(bob.ID, 5))
}

func TestPermissions_RemoveVideoMatrix(t *testing.T) {
	tr := newTestRoom()
	alice := tr.join("Alice") // host
	bob := tr.join("Bob")
	carol := tr.join("Carol")

	cases := []struct {
		name    string
		actor   types.UserID
		allowed bool
	}{
		{"requester removes own", bob.ID, true},
		{"host removes anyone's", alice.ID, true},
		{"bystander denied", carol.ID, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := tr.addVideo(bob.ID, ytURL)
			_, err := tr.RemoveVideo(tc.actor, v.ID)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				_, cleanupErr := tr.RemoveVideo(bob.ID, v.ID)
				require.NoError(t, cleanupErr)
			}
		})
	}
}
