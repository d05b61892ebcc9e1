package handler

import (
	"errors"
	"net/http"
	"strings"

	"marketchat/internal/domain/persona"
	"marketchat/internal/identity"
	"marketchat/internal/services"
	"marketchat/internal/transport/httpdto"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PersonaHeader names the acting persona when the body or query does not.
const PersonaHeader = "X-Persona-Id"

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func respondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.GetGlobalLogger().Ctx(c.Request.Context()).Sugar().Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	var partial *marketchat_errors.PartialLinkError
	if errors.As(err, &partial) {
		c.JSON(status, httpdto.NewPartialLinkResponse(partial, msg, services.ErrorCode(err)))
		return
	}
	c.JSON(status, httpdto.NewErrorResponse(msg, services.ErrorCode(err)))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msg, "INVALID_REQUEST"))
}

// acting authorizes the persona the caller wants to act as. raw comes from
// the body; the query parameter and header are fallbacks.
func acting(c *gin.Context, personas *services.PersonaService, raw string) (persona.Persona, bool) {
	id, ok := identity.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return persona.Persona{}, false
	}
	if raw == "" {
		raw = c.Query("persona_id")
	}
	if raw == "" {
		raw = c.GetHeader(PersonaHeader)
	}
	personaID, err := parseUUID(raw)
	if err != nil {
		badRequest(c, "invalid persona_id")
		return persona.Persona{}, false
	}
	p, err := personas.Authorize(c.Request.Context(), id, personaID)
	if err != nil {
		respondError(c, err)
		return persona.Persona{}, false
	}
	ctx := logger.WithPersona(c.Request.Context(), p.ID.String())
	c.Request = c.Request.WithContext(ctx)
	return p, true
}
