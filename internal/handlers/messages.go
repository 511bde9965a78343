package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/messaging"
	"github.com/nfrund/pulse/internal/middleware"
)

// HeaderConnectionID names the header a client uses to identify which of its
// live connections issued an HTTP request. The fan-out skips that connection
// for message_created events, since it already has the confirmed response.
const HeaderConnectionID = "X-Connection-ID"

// MessageHandler exposes the messaging service over HTTP.
type MessageHandler struct {
	svc *messaging.Service
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc *messaging.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// Users handles GET /api/users: everyone except the caller, for the sidebar.
func (h *MessageHandler) Users(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	users, err := h.svc.ListUsers(c.Request().Context(), user.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

// List handles GET /api/messages/:peerID: the full conversation with one
// peer, oldest first.
func (h *MessageHandler) List(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	peerID := c.Param("peerID")
	if peerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing peer id")
	}

	messages, err := h.svc.List(c.Request().Context(), user.ID, peerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

// Send handles POST /api/messages/:peerID. The multipart form may carry a
// text field, at most one media file (image or video), or a sticker/gif URL.
func (h *MessageHandler) Send(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	peerID := c.Param("peerID")
	if peerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing peer id")
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in := messaging.SendInput{
		SenderID:     user.ID,
		ReceiverID:   peerID,
		Text:         req.Text,
		StickerURL:   req.Sticker,
		GifURL:       req.Gif,
		TempID:       req.TempID,
		OriginConnID: c.Request().Header.Get(HeaderConnectionID),
	}

	if in.Image, err = readFormFile(c, "image"); err != nil {
		return err
	}
	if in.Video, err = readFormFile(c, "video"); err != nil {
		return err
	}

	msg, err := h.svc.Send(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}

	// Echo the correlation id so the requesting tab reconciles its
	// optimistic entry without waiting for the broadcast.
	return c.JSON(http.StatusCreated, echo.Map{
		"message": msg,
		"tempId":  req.TempID,
	})
}

// React handles POST /api/messages/:id/reactions.
func (h *MessageHandler) React(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	var req ReactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.svc.React(c.Request().Context(), user.ID, c.Param("id"), req.Emoji)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /api/messages/:id. Deleting an unknown or
// already-deleted message answers 200 with the redacted shape.
func (h *MessageHandler) Delete(c echo.Context) error {
	user, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	msg, err := h.svc.Delete(c.Request().Context(), user.ID, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

// readFormFile pulls one named file out of the multipart form, tolerating
// its absence.
func readFormFile(c echo.Context, field string) ([]byte, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, nil // Field not present; that's fine.
	}
	return readMultipartFile(fileHeader)
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable upload").SetInternal(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable upload").SetInternal(err)
	}
	return data, nil
}
