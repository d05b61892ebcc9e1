package handler

import (
	"net/http"

	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	personas *services.PersonaService
	rooms    *services.RoomService
}

func NewRoomHandler(personas *services.PersonaService, rooms *services.RoomService) *RoomHandler {
	return &RoomHandler{personas: personas, rooms: rooms}
}

// Ensure finds or creates the room between the acting persona and the
// counterpart.
func (h *RoomHandler) Ensure(c *gin.Context) {
	var req httpdto.EnsureRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	counterpartID, err := parseUUID(req.CounterpartID)
	if err != nil {
		badRequest(c, "invalid counterpart_id")
		return
	}
	roomID, err := h.rooms.EnsureRoom(c.Request.Context(), p.ID, counterpartID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.EnsureRoomResponse{RoomID: roomID}))
}
