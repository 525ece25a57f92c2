package middlewares

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/infrastructure/observability"
)

func TestLoggingMiddlewareSanitizesUserAndQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	router := gin.New()
	router.Use(RequestID())
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "user-42")
		c.Next()
	})
	router.Use(LoggingMiddleware(log, observability.NewSanitizer("hashed", "salt")))
	router.GET("/v1/paystack/verify", func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/paystack/verify?reference=ref_1&email=jane@example.com", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.Equal(t, observability.NewSanitizer("hashed", "salt").UserID("user-42"), entry["user_id"])
	assert.NotContains(t, entry["query"], "jane@example.com")
	assert.Contains(t, entry["query"], "reference=ref_1")
	assert.NotEmpty(t, entry["request_id"])
}
