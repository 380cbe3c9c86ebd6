package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resolver はlb://間接参照のサービス識別子を実インスタンスのURLへ解決する。
type Resolver interface {
	Resolve(ctx context.Context, serviceID string) (string, error)
}

// handleProxy は動的ルーティングテーブルに基づいてリクエストを
// バックエンドへ転送するハンドラを返す。登録済みルートに一致しない
// パスは404を返す。
//
// 転送時のX-USERヘッダーは認証ゲートが設定済みであり、ここでは
// 触らない。パスはそのまま引き継ぐ（プレフィックスは剥がさない）。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		def, ok := s.table.Match(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
			return
		}

		target, err := s.resolver.Resolve(c.Request.Context(), def.ServiceID)
		if err != nil {
			s.logger.Error("転送先の解決に失敗しました",
				"service", def.ServiceID, "route_id", def.RouteID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "転送先サービスに接続できません"})
			return
		}

		proxyURL := target + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}

		resp, err := s.forwarder.Forward(c.Request.Context(), c.Request.Method, proxyURL,
			c.Request.Header, c.Request.Body)
		if err != nil {
			s.logger.Error("バックエンドへの転送に失敗しました",
				"service", def.ServiceID, "url", proxyURL, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "転送先サービスとの通信に失敗しました"})
			return
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "応答の読み取りに失敗しました"})
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.StatusCode, contentType, body)
	}
}
