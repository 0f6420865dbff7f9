package handlers

import (
	"net/http"

	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/util/timezone"
	"photo-indexer/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus gibt Datenbestand, Scan-Zustand und Systemstatistiken zurück
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.store.GetStatistics(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	var scan indexer.Status
	if h.status != nil {
		scan = h.status.Status()
	}

	sseClients := 0
	if h.clients != nil {
		sseClients = h.clients.ClientCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   timezone.Now(),
		"statistics":  stats,
		"scan":        scan,
		"scanning":    h.scanner != nil,
		"sse_clients": sseClients,
		"system":      utils.GetSystemStats(scan),
	})
}
