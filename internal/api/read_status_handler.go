package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/service"
)

// ReadStatusHandler handles document read status endpoints.
type ReadStatusHandler struct {
	service *service.ReadStatusService
}

// NewReadStatusHandler creates a ReadStatusHandler.
func NewReadStatusHandler(svc *service.ReadStatusService) *ReadStatusHandler {
	return &ReadStatusHandler{service: svc}
}

type batchQueryRequest struct {
	DocumentType string  `json:"document_type"`
	IDs          []int64 `json:"ids"`
}

type batchUpdateRequest struct {
	DocumentType string              `json:"document_type"`
	Updates      []readstatus.Update `json:"updates"`
}

// MarkRead handles PUT /api/v1/documents/:id/read?type=.
func (h *ReadStatusHandler) MarkRead(c echo.Context) error {
	docID, ok := documentIDParam(c)
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
	}
	docType, err := models.ParseDocumentType(c.QueryParam("type"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", err.Error())
	}

	entry, err := h.service.MarkAsRead(c.Request().Context(), auth.GetUserID(c), docType, docID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// MarkUnread handles DELETE /api/v1/documents/:id/read?type=.
func (h *ReadStatusHandler) MarkUnread(c echo.Context) error {
	docID, ok := documentIDParam(c)
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
	}
	docType, err := models.ParseDocumentType(c.QueryParam("type"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", err.Error())
	}

	entry, err := h.service.MarkAsUnread(c.Request().Context(), auth.GetUserID(c), docType, docID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// GetReadStatus handles GET /api/v1/documents/:id/read-status.
func (h *ReadStatusHandler) GetReadStatus(c echo.Context) error {
	docID, ok := documentIDParam(c)
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
	}
	entry, err := h.service.GetReadStatus(c.Request().Context(), auth.GetUserID(c), docID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// QueryBatch handles POST /api/v1/documents/read-status/query.
func (h *ReadStatusHandler) QueryBatch(c echo.Context) error {
	var req batchQueryRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	docType, err := models.ParseDocumentType(req.DocumentType)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", err.Error())
	}
	for _, id := range req.IDs {
		if id <= 0 {
			return Error(c, http.StatusBadRequest, "INVALID_ID", "document IDs must be positive")
		}
	}

	entries, err := h.service.GetBatch(c.Request().Context(), auth.GetUserID(c), docType, req.IDs)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// UpdateBatch handles PUT /api/v1/documents/read-status.
func (h *ReadStatusHandler) UpdateBatch(c echo.Context) error {
	var req batchUpdateRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	docType, err := models.ParseDocumentType(req.DocumentType)
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", err.Error())
	}
	for _, u := range req.Updates {
		if u.ID <= 0 {
			return Error(c, http.StatusBadRequest, "INVALID_ID", "document IDs must be positive")
		}
	}

	if err := h.service.UpdateBatch(c.Request().Context(), auth.GetUserID(c), docType, req.Updates); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMine handles GET /api/v1/users/@me/read-statuses?type=.
func (h *ReadStatusHandler) ListMine(c echo.Context) error {
	docType, err := models.ParseDocumentType(c.QueryParam("type"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_DOCUMENT_TYPE", err.Error())
	}

	statuses, err := h.service.ListByUser(c.Request().Context(), auth.GetUserID(c), docType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, statuses)
}

// ClearMine handles DELETE /api/v1/users/@me/read-statuses.
func (h *ReadStatusHandler) ClearMine(c echo.Context) error {
	if err := h.service.ClearAll(c.Request().Context(), auth.GetUserID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func documentIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
