package handler

import (
	"net/http"

	"marketchat/internal/domain/room"
	"marketchat/internal/identity"
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type PersonaHandler struct {
	personas  *services.PersonaService
	directory *services.RoomDirectory
}

func NewPersonaHandler(personas *services.PersonaService, directory *services.RoomDirectory) *PersonaHandler {
	return &PersonaHandler{personas: personas, directory: directory}
}

// List returns every persona the caller may act as, individual first.
func (h *PersonaHandler) List(c *gin.Context) {
	id, ok := identity.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	set, err := h.personas.Resolve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(set))
}

// Rooms lists the persona's rooms. sort is recent or unread; q filters by
// counterpart name or last message.
func (h *PersonaHandler) Rooms(c *gin.Context) {
	p, ok := acting(c, h.personas, c.Param("personaId"))
	if !ok {
		return
	}
	list, err := h.directory.ListRooms(c.Request.Context(), p, room.ParseSortBy(c.Query("sort")))
	if err != nil {
		respondError(c, err)
		return
	}
	list = services.FilterRooms(list, c.Query("q"))
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"rooms": list}))
}
