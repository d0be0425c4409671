package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/newsletter-api/internal/handler"
	subscriptionService "github.com/jwalitptl/newsletter-api/internal/service/subscription"
	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("subscriber_name", func(fl validator.FieldLevel) bool {
			return subscriptionService.ValidateName(fl.Field().String()) == nil
		})
	}
}

type Handler struct {
	service subscriptionService.Service
}

func NewHandler(service subscriptionService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	subscriptions := r.Group("/subscriptions")
	{
		subscriptions.POST("", h.Subscribe)
		subscriptions.GET("/confirm", h.Confirm)
	}
}

type subscribeRequest struct {
	Email string `form:"email" json:"email" binding:"required,email"`
	Name  string `form:"name" json:"name" binding:"required,subscriber_name"`
}

func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Subscribe(c.Request.Context(), req.Email, req.Name); err != nil {
		status := statusFor(err)
		c.JSON(status, handler.NewErrorResponse(messageFor(err, status)))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type confirmRequest struct {
	Token string `form:"token" binding:"required"`
}

func (h *Handler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("token is required"))
		return
	}

	if err := h.service.Confirm(c.Request.Context(), req.Token); err != nil {
		status := statusFor(err)
		c.JSON(status, handler.NewErrorResponse(messageFor(err, status)))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrNotFound:
		return http.StatusNotFound
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
