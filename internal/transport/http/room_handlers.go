package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

const defaultHistoryLimit = 50

// RoomHandlers provides HTTP handlers for room administration.
type RoomHandlers struct {
	chat    *memory.Store
	archive store.Archive
	log     *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance. A nil archive serves history from chat.
func NewRoomHandlers(chat *memory.Store, archive store.Archive, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		chat:    chat,
		archive: archive,
		log:     logger,
	}
}

// GrantRequest represents the grant permission request body.
type GrantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// PermissionsResponse lists the users allowed in a room.
type PermissionsResponse struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// UsersResponse lists the users currently in a room.
type UsersResponse struct {
	Room  string           `json:"room"`
	Users []proto.UserData `json:"users"`
}

// MessagesResponse lists the history of a room, oldest first.
type MessagesResponse struct {
	Room     string                 `json:"room"`
	Messages []proto.MessagePayload `json:"messages"`
}

// ListPermissions handles listing a room's allow-list.
// GET /api/rooms/:id/permissions
func (h *RoomHandlers) ListPermissions(c *gin.Context) {
	roomID := c.Param("id")
	lister, ok := h.chat.Permissions().(store.PermissionLister)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "permission store cannot list grants"})
		return
	}

	users, err := lister.AllowedUsers(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list permissions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, PermissionsResponse{Room: roomID, Users: users})
}

// GrantPermission handles allowing a user into a room.
// POST /api/rooms/:id/permissions
func (h *RoomHandlers) GrantPermission(c *gin.Context) {
	roomID := c.Param("id")

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid grant request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.chat.AllowUser(c.Request.Context(), roomID, req.UserID); err != nil {
		if errors.Is(err, memory.ErrReadOnlyPermissions) {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", req.UserID).Msg("failed to grant permission")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Str("user_id", req.UserID).Msg("permission granted")
	c.JSON(http.StatusCreated, gin.H{"room": roomID, "user_id": req.UserID})
}

// RevokePermission handles removing a user from a room's allow-list.
// DELETE /api/rooms/:id/permissions/:user
func (h *RoomHandlers) RevokePermission(c *gin.Context) {
	roomID, userID := c.Param("id"), c.Param("user")
	granter, ok := h.chat.Permissions().(store.PermissionGranter)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: memory.ErrReadOnlyPermissions.Error()})
		return
	}

	if err := granter.Revoke(c.Request.Context(), roomID, userID); err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("failed to revoke permission")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("permission revoked")
	c.Status(http.StatusNoContent)
}

// ListUsers handles listing the current members of a room.
// GET /api/rooms/:id/users
func (h *RoomHandlers) ListUsers(c *gin.Context) {
	roomID := c.Param("id")
	members := h.chat.UsersInRoom(roomID)

	users := make([]proto.UserData, 0, len(members))
	for _, u := range members {
		users = append(users, proto.FromUser(u))
	}
	c.JSON(http.StatusOK, UsersResponse{Room: roomID, Users: users})
}

// ListMessages handles reading a room's history.
// GET /api/rooms/:id/messages?limit=N
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	roomID := c.Param("id")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var (
		messages []core.Message
		err      error
	)
	if h.archive != nil {
		messages, err = h.archive.ListMessages(c.Request.Context(), roomID, limit)
	} else {
		messages = h.chat.Messages(roomID)
		if limit > 0 && len(messages) > limit {
			messages = messages[len(messages)-limit:]
		}
	}
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := MessagesResponse{Room: roomID, Messages: make([]proto.MessagePayload, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, proto.MessagePayload{
			ID:      m.ID,
			Content: m.Content,
			User:    proto.FromUser(m.User),
			Room:    m.Room.ID,
			TS:      m.TS.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, resp)
}
