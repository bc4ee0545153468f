package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerScheme        = "Bearer"
	userCtx             = "userId"
	wsTokenQuery        = "token"

	errMissingHeader = "missing Authorization header"
	errHeaderFormat  = "invalid Authorization header format"
	errBadToken      = "invalid or expired token"
)

// bearerToken extracts the token from an Authorization header value.
// The returned message is empty on success.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != bearerScheme || strings.TrimSpace(token) == "" {
		return "", errHeaderFormat
	}
	return strings.TrimSpace(token), ""
}

// authorize validates token and stores the operator id in the gin context.
func (h *Handler) authorize(c *gin.Context, token string) {
	userId, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errBadToken})
		return
	}
	c.Set(userCtx, userId)
	c.Next()
}

func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, msg := bearerToken(c.GetHeader(authorizationHeader))
	if msg != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}
	h.authorize(c, token)
}

// wsAuthMiddleware also accepts the token as ?token=, for browser clients
// that cannot set headers on a WebSocket handshake.
func (h *Handler) wsAuthMiddleware(c *gin.Context) {
	if c.GetHeader(authorizationHeader) == "" {
		if token := c.Query(wsTokenQuery); token != "" {
			h.authorize(c, token)
			return
		}
	}
	h.userIdMiddleware(c)
}
