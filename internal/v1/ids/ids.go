// Package ids generates the short identifiers used across the service and
// parses user-supplied video references into a typed form.
package ids

import (
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tossemideia/synctube/internal/v1/types"
)

// Id lengths in hex chars, one per entity kind.
const (
	roomIDLen  = 8
	userIDLen  = 12
	videoIDLen = 10
)

func randomHex(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:n]
}

// NewRoomID returns a fresh 8-char room id.
func NewRoomID() types.RoomID {
	return types.RoomID(randomHex(roomIDLen))
}

// NewUserID returns a fresh 12-char user id.
func NewUserID() types.UserID {
	return types.UserID(randomHex(userIDLen))
}

// NewVideoID returns a fresh 10-char queue entry id.
func NewVideoID() types.VideoID {
	return types.VideoID(randomHex(videoIDLen))
}

// youtubeRef matches the usual YouTube URL shapes and captures the 11-char
// video id: watch?v=, youtu.be/, embed/, /v/ and shorts/.
var youtubeRef = regexp.MustCompile(`(?:youtube\.com/watch\?.*v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)

// bareVideoID matches a raw 11-char YouTube video id.
var bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// directExts are the media file extensions accepted as direct video URLs.
var directExts = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".ogg":  {},
	".ogv":  {},
	".mov":  {},
	".m3u8": {},
}

// ParseVideoRef resolves a raw user-supplied reference into a VideoRef.
// YouTube URLs and bare video ids yield a youtube ref; an http(s) URL whose
// path ends in a known media extension yields a direct ref. The boolean is
// false when nothing matched.
func ParseVideoRef(raw string) (types.VideoRef, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return types.VideoRef{}, false
	}

	if m := youtubeRef.FindStringSubmatch(trimmed); m != nil {
		return types.VideoRef{Kind: types.VideoKindYouTube, ID: m[1]}, true
	}

	if u, err := url.Parse(trimmed); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if _, ok := directExts[strings.ToLower(path.Ext(u.Path))]; ok {
			return types.VideoRef{Kind: types.VideoKindDirect, URL: trimmed}, true
		}
	}

	if bareVideoID.MatchString(trimmed) {
		return types.VideoRef{Kind: types.VideoKindYouTube, ID: trimmed}, true
	}

	return types.VideoRef{}, false
}

// DirectTitle derives a display title for a direct video from its URL,
// falling back to the host when the path carries no file name.
func DirectTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
		return name
	}
	return u.Host
}
