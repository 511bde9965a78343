package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/media"
)

// MediaHandler serves previously uploaded media files.
type MediaHandler struct {
	store *media.Store
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(store *media.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

// Get handles GET /media/:name.
func (h *MediaHandler) Get(c echo.Context) error {
	data, err := h.store.Open(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "media not found")
	}
	// Content type is sniffed; uploads are stored without their original name.
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}
