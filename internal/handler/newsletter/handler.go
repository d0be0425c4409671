package newsletter

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/newsletter-api/internal/handler"
	"github.com/jwalitptl/newsletter-api/internal/middleware"
	newsletterService "github.com/jwalitptl/newsletter-api/internal/service/newsletter"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
)

// IdempotencyKeyHeader carries the client-supplied key making retried
// submissions side-effect free.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	service newsletterService.Service
}

func NewHandler(service newsletterService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	newsletters := r.Group("/newsletters")
	{
		newsletters.POST("", h.Submit)
	}
}

type submitRequest struct {
	Title   string `json:"title" binding:"required"`
	Content struct {
		HTML string `json:"html" binding:"required"`
		Text string `json:"text" binding:"required"`
	} `json:"content" binding:"required"`
}

// Submit accepts a newsletter issue. The response is written from the
// idempotency ledger's saved bytes, so a retried request is
// indistinguishable from the first success.
func (h *Handler) Submit(c *gin.Context) {
	publisherID, ok := publisherIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing publisher identity"))
		return
	}

	key := c.GetHeader(IdempotencyKeyHeader)
	if key == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("Idempotency-Key header is required"))
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	outcome, err := h.service.Submit(c.Request.Context(), publisherID, key, &newsletterService.Submission{
		Title:       req.Title,
		HTMLContent: req.Content.HTML,
		TextContent: req.Content.Text,
	})
	if err != nil {
		status := statusFor(err)
		c.JSON(status, handler.NewErrorResponse(messageFor(err, status)))
		return
	}

	for name, value := range outcome.Response.Headers {
		if name == "Content-Type" {
			continue
		}
		c.Header(name, value)
	}
	c.Data(outcome.Response.StatusCode, "application/json", outcome.Response.Body)
}

func publisherIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(middleware.PublisherIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
