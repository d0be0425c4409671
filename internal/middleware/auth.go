package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/newsletter-api/internal/handler"
	"github.com/jwalitptl/newsletter-api/internal/service/auth"
)

// PublisherIDKey is the context key under which the authenticated
// publisher's id is stored.
const PublisherIDKey = "publisherID"

type AuthMiddleware struct {
	authService auth.Service
}

func NewAuthMiddleware(authService auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate verifies publisher basic-auth credentials and sets the
// publisher id in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="publish"`)
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing credentials"))
			c.Abort()
			return
		}

		publisherID, err := m.authService.Verify(c.Request.Context(), username, password)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="publish"`)
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid credentials"))
			c.Abort()
			return
		}

		c.Set(PublisherIDKey, publisherID)
		c.Next()
	}
}
