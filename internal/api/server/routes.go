package server

import (
	"net/http"

	"github.com/bz888/gab/internal/api/server/handlers"
)

func registerRoutes(handler *handlers.Handler) {
	http.HandleFunc("/chat", handler.ChatHandler)
	http.HandleFunc("/cancel/", handler.CancelHandler)
	http.HandleFunc("/events", handler.EventsHandler)
	http.HandleFunc("/models", handler.ModelHandler)
}
