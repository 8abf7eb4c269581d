package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/students/:studentId", handlers...)
	return r
}

func serve(r *gin.Engine, path, auth string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTRequiresBearerToken(t *testing.T) {
	v := &validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}}
	r := newRouter(JWT(v))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/u1", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/u1", "Basic abc"))
	assert.Equal(t, http.StatusOK, serve(r, "/students/u1", "bearer tok-1"))
	assert.Equal(t, "tok-1", v.token)

	v.err = appErrors.Clone(appErrors.ErrUnauthorized, "token expired")
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/u1", "Bearer tok-2"))
}

func TestRBACAllowsRolesAndSelf(t *testing.T) {
	v := &validatorStub{}
	r := newRouter(JWT(v), RBAC(string(models.RoleAdmin), SelfRole))

	v.claims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	assert.Equal(t, http.StatusOK, serve(r, "/students/stu-1", "Bearer t"))

	v.claims = &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	assert.Equal(t, http.StatusOK, serve(r, "/students/stu-1", "Bearer t"))
	assert.Equal(t, http.StatusForbidden, serve(r, "/students/stu-2", "Bearer t"))
}

func TestRBACWithoutClaims(t *testing.T) {
	r := newRouter(RequireStaff())
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/x", ""))
}

func TestJWTPassesThroughPlainErrorsAsInternal(t *testing.T) {
	v := &validatorStub{err: errors.New("boom")}
	r := newRouter(JWT(v))
	assert.Equal(t, http.StatusInternalServerError, serve(r, "/students/x", "Bearer t"))
}
