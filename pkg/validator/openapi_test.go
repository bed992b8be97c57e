package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "stock-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../api/openapi.yaml"

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)
	assert.Equal(t, "Stock Chat API", v.Title())

	r := gin.New()
	r.Use(apperrors.ErrorHandler(), v.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/messages/:topic", ok)
	r.GET("/api/v1/messages/:topic", ok)
	r.GET("/ws", ok)
	return r
}

func TestMiddleware(t *testing.T) {
	r := newEngine(t)

	tests := []struct {
		path string
		code int
	}{
		{"/messages/AAPL", http.StatusOK},
		{"/messages/AAPL?limit=5", http.StatusOK},
		{"/api/v1/messages/TSLA?limit=10", http.StatusOK},
		{"/messages/AAPL?limit=0", http.StatusBadRequest},
		{"/api/v1/messages/AAPL?limit=ten", http.StatusBadRequest},
		{"/ws", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code, tt.path)
		if tt.code == http.StatusBadRequest {
			assert.Contains(t, w.Body.String(), apperrors.CodeInvalidArgument)
		}
	}
}

func TestInvalidSchema(t *testing.T) {
	_, err := NewOpenAPIValidator(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"), 0o600))
	_, err = NewOpenAPIValidator(path)
	assert.Error(t, err)
}

func TestReloadSchema(t *testing.T) {
	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)
	assert.NoError(t, v.ReloadSchema())
}
