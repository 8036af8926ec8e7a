package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"StandupBrief/api"
)

func setupRouter(h *api.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HandleHealthCheck)

	r.Get("/slack/install", h.HandleSlackInstall)
	r.Get("/slack/oauth/callback", h.HandleSlackOAuthCallback)
	r.Post("/slack/events", h.HandleSlackEvents)

	return r
}
