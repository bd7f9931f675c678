package collab

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/domain"
)

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

type Handler struct {
	service  *Service
	tokens   TokenVerifier
	users    UserGetter
	upgrader websocket.Upgrader
}

func NewHandler(service *Service, tokens TokenVerifier, users UserGetter, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		service: service,
		tokens:  tokens,
		users:   users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func RegisterRoute(r *gin.Engine, h *Handler) {
	r.GET("/ws", h.ServeWS)
}

// ServeWS upgrades the connection and starts the pumps. Credentials are
// optional: a valid token cookie binds the connection to a verified user,
// anything else joins as a guest carrying whatever identity the join payload
// offers.
func (h *Handler) ServeWS(ctx *gin.Context) {
	identity := h.resolveIdentity(ctx)

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Str("ip", ctx.ClientIP()).Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(NewWebsocketConnection(conn), identity, h.service)
	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) resolveIdentity(ctx *gin.Context) domain.Identity {
	token, err := ctx.Cookie("token")
	if err != nil || token == "" {
		return domain.Identity{}
	}
	id, err := h.tokens.Verify(token)
	if err != nil {
		log.Debug().Str("ip", ctx.ClientIP()).Err(err).Msg("ignoring invalid token on ws connect")
		return domain.Identity{}
	}
	user, err := h.users.GetUserById(ctx.Request.Context(), id)
	if err != nil {
		log.Warn().Str("user", id).Err(err).Msg("token verified but user lookup failed, joining as guest")
		return domain.Identity{}
	}
	return domain.Identity{UserId: user.Id, DisplayName: user.Username}
}
