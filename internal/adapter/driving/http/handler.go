package http

import (
	"net/http"

	"github.com/callglue/callglue/internal/adapter/driven/gateway/ws"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/callglue/callglue/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Hub    *ws.Hub
	Relay  *service.MediaRelay
	Media  *MediaGateway
	Tokens port.TokenService
	CSRF   string
}

func NewHandler(hub *ws.Hub, relay *service.MediaRelay, media *MediaGateway, tokens port.TokenService, csrfToken string) *Handler {
	return &Handler{
		Hub:    hub,
		Relay:  relay,
		Media:  media,
		Tokens: tokens,
		CSRF:   csrfToken,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/token/", h.MintToken)
	r.Post("/call-user/", h.PlaceCall)
	r.Post("/decline-call/", h.DeclineCall)
	r.Get("/presence", h.ServePresence)
	r.Get("/media", h.ServeMedia)

	return r
}
