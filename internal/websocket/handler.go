package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"marketchat/internal/events"
	"marketchat/internal/identity"
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"
	"marketchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Presence marks personas online while they hold a live connection.
type Presence interface {
	Touch(ctx context.Context, personaID uuid.UUID) error
	Clear(ctx context.Context, personaID uuid.UUID) error
}

type Handler struct {
	verifier identity.Verifier
	personas *services.PersonaService
	rooms    *services.RoomService
	bus      events.Bus
	presence Presence
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the live stream handler. presence may be nil.
func NewHandler(verifier identity.Verifier, personas *services.PersonaService, rooms *services.RoomService, bus events.Bus, presence Presence, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &Handler{
		verifier: verifier,
		personas: personas,
		rooms:    rooms,
		bus:      bus,
		presence: presence,
		log:      l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Live streams the room's message and call events plus the persona's room
// list events. Browsers cannot set headers on upgrade, so the token comes
// from the query string.
func (h *Handler) Live(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	id, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid room id", "INVALID_REQUEST"))
		return
	}
	personaID, err := uuid.Parse(c.Query("persona_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid persona_id", "INVALID_REQUEST"))
		return
	}
	p, err := h.personas.Authorize(c.Request.Context(), id, personaID)
	if err != nil {
		c.JSON(services.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), services.ErrorCode(err)))
		return
	}
	if _, err := h.rooms.Get(c.Request.Context(), roomID, p.ID); err != nil {
		c.JSON(services.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), services.ErrorCode(err)))
		return
	}

	ctx, cancel := context.WithCancel(logger.WithPersona(context.Background(), p.ID.String()))
	defer cancel()

	channels := []string{
		events.RoomMessagesChannel(roomID),
		events.RoomCallsChannel(roomID),
		events.PersonaChannel(p.ID),
	}
	subs := make([]*events.Subscription, 0, len(channels))
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()
	for _, ch := range channels {
		sub, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.log.Ctx(ctx).Sugar().Errorf("subscribe %s: %v", ch, err)
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("realtime unavailable", "UNAVAILABLE"))
			return
		}
		subs = append(subs, sub)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, p.ID, roomID)
	go client.WriteLoop(ctx)
	for _, sub := range subs {
		go client.Forward(sub)
	}
	h.touch(ctx, p.ID)
	h.log.Ctx(ctx).Sugar().Debugf("live connection %s opened for room %s", client.ID, roomID)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		h.touch(ctx, p.ID)
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}

	if h.presence != nil {
		if err := h.presence.Clear(context.Background(), p.ID); err != nil {
			h.log.Ctx(ctx).Sugar().Warnf("clear presence: %v", err)
		}
	}
	h.log.Ctx(ctx).Sugar().Debugf("live connection %s closed, %d frames dropped", client.ID, client.Dropped())
}

func (h *Handler) touch(ctx context.Context, personaID uuid.UUID) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Touch(ctx, personaID); err != nil {
		h.log.Ctx(ctx).Sugar().Warnf("touch presence: %v", err)
	}
}
