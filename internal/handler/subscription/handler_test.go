package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/jwalitptl/newsletter-api/pkg/errors"
)

type stubService struct {
	subscribeErr error
	confirmErr   error

	gotEmail string
	gotName  string
	gotToken string
}

func (s *stubService) Subscribe(ctx context.Context, email, name string) error {
	s.gotEmail = email
	s.gotName = name
	return s.subscribeErr
}

func (s *stubService) Confirm(ctx context.Context, token string) error {
	s.gotToken = token
	return s.confirmErr
}

func newTestRouter(svc *stubService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group(""))
	return r
}

func postForm(router *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/subscriptions",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubscribeAcceptsFormData(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := postForm(router, url.Values{
		"email": {"ursula@example.com"},
		"name":  {"Ursula Le Guin"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ursula@example.com", svc.gotEmail)
	assert.Equal(t, "Ursula Le Guin", svc.gotName)
}

func TestSubscribeRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"missing email", url.Values{"name": {"Ursula"}}},
		{"missing name", url.Values{"email": {"ursula@example.com"}}},
		{"malformed email", url.Values{"email": {"not-an-email"}, "name": {"Ursula"}}},
		{"forbidden characters in name", url.Values{"email": {"ursula@example.com"}, "name": {"<script>"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			router := newTestRouter(svc)

			rec := postForm(router, tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.gotEmail)
		})
	}
}

func TestSubscribeMapsServiceErrors(t *testing.T) {
	svc := &stubService{subscribeErr: apperrors.BadRequest("name contains forbidden characters", nil)}
	router := newTestRouter(svc)

	rec := postForm(router, url.Values{
		"email": {"ursula@example.com"},
		"name":  {"Ursula"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden characters")
}

func TestConfirmRedeemsToken(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm?token=tok123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok123", svc.gotToken)
}

func TestConfirmRequiresToken(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.gotToken)
}

func TestConfirmMapsUnknownToken(t *testing.T) {
	svc := &stubService{confirmErr: apperrors.Unauthorized(assert.AnError)}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm?token=unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
