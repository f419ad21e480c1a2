// Package api exposes the REST surface beside the websocket: room
// creation, the public room listing and the health probe clients poll
// before connecting.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tossemideia/synctube/internal/v1/room"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// Directory is the hub surface the REST handlers need.
type Directory interface {
	CreateRoom() *room.Room
	GetRoom(id types.RoomID) (*room.Room, bool)
	Rooms() []*room.Room
	RoomCount() int
}

// Handler bundles the REST endpoints over a room directory.
type Handler struct {
	directory Directory
}

func NewHandler(directory Directory) *Handler {
	return &Handler{directory: directory}
}

// Register mounts the endpoints on a router group.
func (h *Handler) Register(group *gin.RouterGroup, roomCreateLimit gin.HandlerFunc) {
	group.GET("/health", h.Health)
	group.GET("/rooms", h.ListRooms)
	group.POST("/rooms", roomCreateLimit, h.CreateRoom)
	group.GET("/rooms/:roomId", h.GetRoom)
}

// Health reports liveness plus the active room count.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  h.directory.RoomCount(),
	})
}

// CreateRoom registers a fresh room and returns its id.
func (h *Handler) CreateRoom(c *gin.Context) {
	r := h.directory.CreateRoom()
	c.JSON(http.StatusOK, gin.H{"room_id": r.ID})
}

// roomListing is one row of the public room list.
type roomListing struct {
	RoomID       types.RoomID `json:"room_id"`
	HostName     string       `json:"host_name"`
	UserCount    int          `json:"user_count"`
	QueueLength  int          `json:"queue_length"`
	CurrentVideo *string      `json:"current_video"`
}

// ListRooms returns the occupied rooms. Empty rooms awaiting their first
// join or their reaping are not listed.
func (h *Handler) ListRooms(c *gin.Context) {
	listings := make([]roomListing, 0)
	for _, r := range h.directory.Rooms() {
		s := r.Summary()
		if s.ConnectedUsers == 0 {
			continue
		}
		listings = append(listings, roomListing{
			RoomID:       s.RoomID,
			HostName:     s.HostName,
			UserCount:    s.ConnectedUsers,
			QueueLength:  s.QueueLength,
			CurrentVideo: s.CurrentVideo,
		})
	}
	c.JSON(http.StatusOK, listings)
}

// GetRoom reports whether a room exists, for the pre-connect check.
// Missing rooms answer 200 with exists:false; the websocket path is the
// one that speaks close code 4004.
func (h *Handler) GetRoom(c *gin.Context) {
	id := types.RoomID(c.Param("roomId"))
	r, ok := h.directory.GetRoom(id)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	s := r.Summary()
	c.JSON(http.StatusOK, gin.H{
		"exists":       true,
		"room_id":      s.RoomID,
		"user_count":   s.ConnectedUsers,
		"queue_length": s.QueueLength,
	})
}
