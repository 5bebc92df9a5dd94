package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remittance-engine/pkg/logger"
)

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("GeneratesWhenMissing", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var fromContext string
		router.GET("/test", func(c *gin.Context) {
			fromContext = logger.CorrelationID(c.Request.Context())
			c.Status(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

		header := rr.Header().Get(CorrelationIDHeader)
		_, err := uuid.Parse(header)
		assert.NoError(t, err)
		assert.Equal(t, header, fromContext)
	})

	t.Run("KeepsProvidedID", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var captured string
		router.GET("/test", func(c *gin.Context) {
			captured = GetCorrelationID(c)
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(CorrelationIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, "abc-123", rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "abc-123", captured)
	})
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	router := gin.New()
	router.Use(CorrelationID(), Logger(log))
	router.GET("/items", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/items?x=1", nil)
	req.Header.Set(CorrelationIDHeader, "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/items", entry.Data["path"])
	assert.Equal(t, "x=1", entry.Data["query"])
	assert.Equal(t, "req-1", entry.Data["correlation_id"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	router := gin.New()
	router.Use(ErrorHandler(log))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("downstream failed"))
	})
	router.GET("/answered", func(c *gin.Context) {
		_ = c.Error(errors.New("already handled"))
		c.JSON(http.StatusConflict, gin.H{"ok": false})
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "downstream failed")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/answered", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Len(t, hook.AllEntries(), 2)
}
