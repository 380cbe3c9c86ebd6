package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("IDが無いリクエストにUUIDが採番されること", func(t *testing.T) {
		t.Parallel()

		var forwarded string
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			forwarded = c.Request.Header.Get(HeaderRequestID)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if forwarded == "" {
			t.Fatal("転送リクエストにX-Request-IDが設定されていない")
		}
		if _, err := uuid.Parse(forwarded); err != nil {
			t.Errorf("X-Request-IDがUUIDではない: %q", forwarded)
		}
		if got := w.Header().Get(HeaderRequestID); got != forwarded {
			t.Errorf("応答のX-Request-ID = %q, want %q", got, forwarded)
		}
	})

	t.Run("クライアントが指定したIDが引き継がれること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "client-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(HeaderRequestID); got != "client-id-123" {
			t.Errorf("応答のX-Request-ID = %q, want %q", got, "client-id-123")
		}
	})
}
