package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエスト追跡用IDを運ぶHTTPヘッダーのキー。
const HeaderRequestID = "X-Request-ID"

// RequestID は各リクエストに一意のIDを付与するGinミドルウェアを返す。
// クライアントが既にX-Request-IDを送っている場合はその値を引き継ぎ、
// 無ければUUIDを採番する。IDは転送先リクエストと応答の両方に設定する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set(HeaderRequestID, id)
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
