package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"photo-indexer/internal/api/middleware"
	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/core/models"
	"photo-indexer/internal/db/repository"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ScanTrigger startet einen Scan im Hintergrund
type ScanTrigger interface {
	Trigger() error
}

// StatusSource liefert den Zustand der Indexierung
type StatusSource interface {
	Status() indexer.Status
}

// ClientCounter meldet die Anzahl verbundener Event-Clients
type ClientCounter interface {
	ClientCount() int
}

// APIHandler behandelt die JSON-API über dem Datenbestand
type APIHandler struct {
	store   repository.Store
	scanner ScanTrigger // nil, wenn kein Objektdetektor verfügbar ist
	status  StatusSource
	clients ClientCounter
	root    string
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(store repository.Store, scanner ScanTrigger, status StatusSource, root string) *APIHandler {
	return &APIHandler{
		store:   store,
		scanner: scanner,
		status:  status,
		root:    root,
	}
}

// SetEventClients hinterlegt die Quelle für die Anzahl verbundener Event-Clients
func (h *APIHandler) SetEventClients(clients ClientCounter) {
	h.clients = clients
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Bilder-Endpunkte
	router.GET("/images", h.ListImages)
	router.GET("/images/:id", h.GetImage)
	router.DELETE("/images/:id", h.DeleteImage)

	// Tags und Profile
	router.GET("/tags", h.ListTags)
	router.GET("/profiles", h.ListProfiles)
	router.PUT("/profiles/:id", h.RenameProfile)

	// System-Endpunkte
	router.POST("/scan", h.TriggerScan)
	router.GET("/status", h.GetStatus)
}

// ListImages gibt Bilder zurück: nach Tag, nach Profil oder alle.
// Ein Tag-Filter hat Vorrang vor dem Profil-Filter.
func (h *APIHandler) ListImages(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := pagination(c)

	if tag := c.Query("tag"); tag != "" {
		matches, err := h.store.ImagesByTag(ctx, tag)
		if err != nil {
			h.internalError(c, err)
			return
		}
		respondMatches(c, gin.H{"tag": tag}, matches, page, pageSize)
		return
	}

	if raw := c.Query("profile_id"); raw != "" {
		profileID, ok := parseID(c, raw)
		if !ok {
			return
		}
		matches, err := h.store.ImagesByProfile(ctx, profileID)
		if err != nil {
			h.internalError(c, err)
			return
		}
		respondMatches(c, gin.H{"profile_id": profileID}, matches, page, pageSize)
		return
	}

	images, total, err := h.store.ListImages(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images": images,
		"pagination": gin.H{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	})
}

// GetImage gibt ein einzelnes Bild mit Tags und Gesichtern zurück
func (h *APIHandler) GetImage(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	image, err := h.store.GetImage(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "error.image_not_found", nil)})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, image)
}

// DeleteImage löscht ein Bild samt Tags und Gesichtern. Die Datei selbst bleibt unberührt.
func (h *APIHandler) DeleteImage(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	err := h.store.DeleteImage(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "error.image_not_found", nil)})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	log.Infof("Image %d deleted via API", id)
	c.JSON(http.StatusOK, gin.H{"message": middleware.T(c, "message.image_deleted", nil)})
}

// ListTags gibt die Tag-Häufigkeiten zurück, absteigend nach Anzahl
func (h *APIHandler) ListTags(c *gin.Context) {
	stats, err := h.store.TagStats(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": stats})
}

// ListProfiles gibt alle Profile mit ihrer Anzahl an Erkennungen zurück
func (h *APIHandler) ListProfiles(c *gin.Context) {
	roster, err := h.store.ProfilesWithCounts(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": roster})
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameProfile vergibt einen Namen für ein Profil
func (h *APIHandler) RenameProfile(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "error.invalid_request", map[string]interface{}{"Error": err.Error()})})
		return
	}

	err := h.store.RenameProfile(c.Request.Context(), id, req.Name)
	switch {
	case errors.Is(err, repository.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "error.invalid_name", nil)})
		return
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "error.profile_not_found", nil)})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"message": middleware.T(c, "message.profile_renamed", map[string]interface{}{"Name": req.Name}),
	})
}

// TriggerScan startet einen Scan des konfigurierten Wurzelverzeichnisses
func (h *APIHandler) TriggerScan(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": middleware.T(c, "error.scan_unavailable", nil)})
		return
	}

	err := h.scanner.Trigger()
	if errors.Is(err, indexer.ErrScanInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": middleware.T(c, "error.scan_in_progress", nil)})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": middleware.T(c, "message.scan_started", map[string]interface{}{"Root": h.root})})
}

func (h *APIHandler) internalError(c *gin.Context, err error) {
	log.Errorf("API request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": middleware.T(c, "error.internal", map[string]interface{}{"Error": err.Error()})})
}

// parseID liest eine positive numerische ID und schreibt bei Fehlern eine 400-Antwort
func parseID(c *gin.Context, raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "error.invalid_id", map[string]interface{}{"Value": raw})})
		return 0, false
	}
	return uint(id), true
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func respondMatches(c *gin.Context, filter gin.H, matches []models.ImageMatch, page, pageSize int) {
	if matches == nil {
		matches = []models.ImageMatch{}
	}
	total := len(matches)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"filter": filter,
		"images": matches[start:end],
		"pagination": gin.H{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	})
}
