package handler

import (
	"context"
	"io"
	"net/http"

	"marketchat/internal/domain/message"
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	personas  *services.PersonaService
	messages  *services.MessageService
	maxUpload int64
}

func NewMessageHandler(personas *services.PersonaService, messages *services.MessageService, maxUpload int64) *MessageHandler {
	if maxUpload <= 0 {
		maxUpload = services.DefaultMaxUploadBytes
	}
	return &MessageHandler{personas: personas, messages: messages, maxUpload: maxUpload}
}

func (h *MessageHandler) roomID(c *gin.Context) (uuid.UUID, bool) {
	roomID, err := parseUUID(c.Param("roomId"))
	if err != nil {
		badRequest(c, "invalid room id")
		return uuid.Nil, false
	}
	return roomID, true
}

func (h *MessageHandler) List(c *gin.Context) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	p, ok := acting(c, h.personas, "")
	if !ok {
		return
	}
	list, err := h.messages.LoadHistory(c.Request.Context(), roomID, p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": list}))
}

func (h *MessageHandler) Send(c *gin.Context) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	content := message.Content{
		Type:      req.Type,
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		Offer:     req.Offer,
	}
	if req.ReplyTo != "" {
		replyTo, err := parseUUID(req.ReplyTo)
		if err != nil {
			badRequest(c, "invalid reply_to")
			return
		}
		content.ReplyTo = &replyTo
	}
	m, err := h.messages.Send(c.Request.Context(), roomID, p.ID, content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(m))
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.mark(c, h.messages.MarkRead)
}

func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	h.mark(c, h.messages.MarkDelivered)
}

func (h *MessageHandler) mark(c *gin.Context, op func(ctx context.Context, roomID, personaID uuid.UUID) (int, error)) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	var req httpdto.PersonaRequest
	_ = c.ShouldBindJSON(&req)
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	n, err := op(c.Request.Context(), roomID, p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CountResponse{Updated: n}))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	var req httpdto.DeleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	p, ok := acting(c, h.personas, req.PersonaID)
	if !ok {
		return
	}
	ids := make([]uuid.UUID, 0, len(req.MessageIDs))
	for _, raw := range req.MessageIDs {
		id, err := parseUUID(raw)
		if err != nil {
			badRequest(c, "invalid message id")
			return
		}
		ids = append(ids, id)
	}
	res, err := h.messages.DeleteOwn(c.Request.Context(), roomID, p.ID, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

// Upload stores a media file and returns its public URL. The client sends
// the message referencing it separately.
func (h *MessageHandler) Upload(c *gin.Context) {
	roomID, ok := h.roomID(c)
	if !ok {
		return
	}
	p, ok := acting(c, h.personas, c.PostForm("persona_id"))
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if fh.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse("file too large", "TOO_LARGE"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	url, err := h.messages.UploadMedia(c.Request.Context(), roomID, p.ID, fh.Filename, fh.Header.Get("Content-Type"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.UploadResponse{URL: url}))
}
