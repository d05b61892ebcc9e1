package handler

import (
	"net/http"

	"marketchat/internal/domain/call"
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	personas *services.PersonaService
	calls    *services.CallService
}

func NewCallHandler(personas *services.PersonaService, calls *services.CallService) *CallHandler {
	return &CallHandler{personas: personas, calls: calls}
}

func (h *CallHandler) Start(c *gin.Context) {
	roomID, err := parseUUID(c.Param("roomId"))
	if err != nil {
		badRequest(c, "invalid room id")
		return
	}
	var req httpdto.StartCallRequest
	_ = c.ShouldBindJSON(&req)
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	sig, err := h.calls.Start(c.Request.Context(), roomID, p.ID, call.Type(req.CallType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(sig))
}

func (h *CallHandler) Answer(c *gin.Context) {
	callID, err := parseUUID(c.Param("callId"))
	if err != nil {
		badRequest(c, "invalid call id")
		return
	}
	var req httpdto.PersonaRequest
	_ = c.ShouldBindJSON(&req)
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	sig, err := h.calls.Answer(c.Request.Context(), callID, p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(sig))
}

// End hangs up, declines or cancels depending on the call state and who
// ends it, unless reason names one explicitly.
func (h *CallHandler) End(c *gin.Context) {
	callID, err := parseUUID(c.Param("callId"))
	if err != nil {
		badRequest(c, "invalid call id")
		return
	}
	var req httpdto.EndCallRequest
	_ = c.ShouldBindJSON(&req)
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	sig, err := h.calls.End(c.Request.Context(), callID, p.ID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(sig))
}
