package handlers

import (
	"io"
	"net/http"

	"photo-indexer/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// EventHandler streamt Pipeline-Ereignisse per Server-Sent Events
type EventHandler struct {
	hub *sse.Hub
}

// NewEventHandler erstellt einen neuen Event-Handler
func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// RegisterRoutes registriert den SSE-Endpunkt
func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.handleSSE)
}

// handleSSE hält die Verbindung offen, bis der Client geht oder der Hub stoppt
func (h *EventHandler) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10) // Puffer für 10 Nachrichten

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	// Header sofort senden, damit der Client nicht bis zum ersten Ereignis wartet
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false // Kanal geschlossen, Stream beenden
			}
			c.SSEvent("message", string(msg))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
