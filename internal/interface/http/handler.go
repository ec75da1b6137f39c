package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	apperrors "github.com/quizmentor/quizmentor/pkg/errors"
)

// Handler wires the HTTP transport to the dedup engine.
type Handler struct {
	dedupSvc dedup.Service
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(dedupSvc dedup.Service, logger *slog.Logger) *Handler {
	return &Handler{
		dedupSvc: dedupSvc,
		logger:   logger.With("component", "http.handler"),
	}
}

type resolveRequest struct {
	Question string `json:"question" binding:"required"`
	Context  string `json:"context"`
}

type directInsertRequest struct {
	Question    string  `json:"question" binding:"required"`
	Label       bool    `json:"label"`
	Explanation string  `json:"explanation"`
	LessonID    *string `json:"lessonId"`
}

// ResolveGlobal submits a question against the global pool.
func (h *Handler) ResolveGlobal(c *gin.Context) {
	h.resolve(c, dedup.GlobalScope())
}

// ResolveLesson submits a question against one lesson's pool.
func (h *Handler) ResolveLesson(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid lesson id", err))
		return
	}
	h.resolve(c, dedup.LessonScope(lessonID))
}

func (h *Handler) resolve(c *gin.Context, scope dedup.Scope) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resolution, err := h.dedupSvc.Resolve(c.Request.Context(), dedup.ResolveRequest{
		Text:    req.Question,
		Scope:   scope,
		Context: req.Context,
	})
	if err != nil {
		abortWithError(c, mapServiceError(err, "resolve_failed"))
		return
	}

	c.JSON(http.StatusOK, resolution)
}

// DirectInsert creates a record without deduplication or a vector. Reserved
// for trusted administrative callers.
func (h *Handler) DirectInsert(c *gin.Context) {
	var req directInsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	scope := dedup.GlobalScope()
	if req.LessonID != nil {
		lessonID, err := uuid.Parse(*req.LessonID)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid lesson id", err))
			return
		}
		scope = dedup.LessonScope(lessonID)
	}

	rec, err := h.dedupSvc.CreateDirect(c.Request.Context(), dedup.DirectInsert{
		Text:        req.Question,
		Label:       req.Label,
		Explanation: req.Explanation,
		Scope:       scope,
	})
	if err != nil {
		abortWithError(c, mapServiceError(err, "direct_insert_failed"))
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// Related returns stored questions ranked by similarity to the query string.
func (h *Handler) Related(c *gin.Context) {
	query := c.Query("q")
	scope := dedup.GlobalScope()
	if raw := c.Query("lessonId"); raw != "" {
		lessonID, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid lesson id", err))
			return
		}
		scope = dedup.LessonScope(lessonID)
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid limit", err))
			return
		}
		limit = parsed
	}

	ranked, err := h.dedupSvc.Related(c.Request.Context(), query, scope, limit)
	if err != nil {
		abortWithError(c, mapServiceError(err, "related_failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": ranked})
}

// DeleteQuestion cascades a record and its vector away.
func (h *Handler) DeleteQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid question id", err))
		return
	}
	scope := dedup.GlobalScope()
	if raw := c.Query("lessonId"); raw != "" {
		lessonID, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid lesson id", err))
			return
		}
		scope = dedup.LessonScope(lessonID)
	}

	if err := h.dedupSvc.Delete(c.Request.Context(), scope, id); err != nil {
		abortWithError(c, mapServiceError(err, "delete_failed"))
		return
	}

	c.Status(http.StatusNoContent)
}

// Trending lists the most submitted questions.
func (h *Handler) Trending(c *gin.Context) {
	top, err := h.dedupSvc.Trending(c.Request.Context())
	if err != nil {
		abortWithError(c, mapServiceError(err, "trending_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending": top})
}

func mapServiceError(err error, fallbackCode string) *HTTPError {
	switch {
	case apperrors.IsCode(err, "invalid_input"):
		return NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err)
	case apperrors.IsCode(err, "transient_provider"):
		// Provider outages are transient from the caller's perspective.
		return NewHTTPError(http.StatusServiceUnavailable, "provider_unavailable", "temporarily unavailable, try again later", err)
	default:
		return NewHTTPError(http.StatusInternalServerError, fallbackCode, errMessage(err), err)
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
