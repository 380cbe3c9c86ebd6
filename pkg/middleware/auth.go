package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/edgegate/pkg/token"
)

// HeaderIdentity は検証済み利用者の識別子を下流サービスへ伝える
// 信頼ヘッダーのキー。エッジからこのヘッダーを書き込むのは認証ゲートのみで、
// クライアントが同名ヘッダーを送ってきた場合は必ず上書きする。
const HeaderIdentity = "X-USER"

// contextKeyIdentity はGinコンテキストに識別子を格納するためのキー。
const contextKeyIdentity = "identity"

// Auth はベアラートークンを検証する認証ゲートのGinミドルウェアを返す。
//
// リクエストパスがopenEndpointsのいずれかの部分文字列を含む場合、
// 認証を行わずそのまま通過させる。それ以外のリクエストは
// Authorization: Bearer ヘッダーのトークンを検証し、失敗時は一律401で
// 打ち切る（ヘッダー方式を採用する。Cookie方式とは併用しない）。
// 成功時は転送するリクエストにX-USERヘッダーを設定して通過させる。
func Auth(verifier *token.Verifier, openEndpoints []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, open := range openEndpoints {
			if open != "" && strings.Contains(path, open) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証情報がありません",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		identity, err := verifier.Verify(tokenString)
		if err != nil {
			// 失敗種別は内部ログにのみ残し、応答では区別しない
			log.Printf("[Auth] トークン検証に失敗: token=%s, error=%v", token.Mask(tokenString), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		// クライアントが詐称したX-USERを必ず上書きする
		c.Request.Header.Set(HeaderIdentity, identity)
		c.Set(contextKeyIdentity, identity)
		c.Next()
	}
}

// GetIdentity はGinコンテキストから検証済み識別子を取得する。
// Authミドルウェアが事前に適用されている必要がある。
func GetIdentity(c *gin.Context) string {
	v, _ := c.Get(contextKeyIdentity)
	if identity, ok := v.(string); ok {
		return identity
	}
	return ""
}
