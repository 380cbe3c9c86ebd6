package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/nao1215/edgegate/pkg/httpclient"
	"github.com/nao1215/edgegate/pkg/middleware"
	"github.com/nao1215/edgegate/pkg/token"
)

// devTokenTTL は開発用トークンの有効期間。
const devTokenTTL = 24 * time.Hour

// Config はゲートウェイサーバーの構成。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// Verifier はベアラートークンの検証器。
	Verifier *token.Verifier
	// Table は稼働中ルーティングテーブル。
	Table *RouteTable
	// Resolver は転送先インスタンスの解決器。
	Resolver Resolver
	// OpenEndpoints は認証を免除するパスの部分文字列一覧。
	OpenEndpoints []string
	// AllowedOrigins はCORSで許可するオリジン一覧。
	AllowedOrigins []string
	// Logger は診断ログの出力先。
	Logger hclog.Logger
}

// Server はエッジゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// verifier はベアラートークンの検証器。
	verifier *token.Verifier
	// table は稼働中ルーティングテーブル。
	table *RouteTable
	// resolver は転送先インスタンスの解決器。
	resolver Resolver
	// forwarder はバックエンドへの転送クライアント。
	forwarder *httpclient.Client
	// logger は診断ログの出力先。
	logger hclog.Logger
}

// NewServer は新しいゲートウェイサーバーを生成する。
// ミドルウェアは固定の順序で適用し、認証ゲートはルーティングより前に置く。
func NewServer(cfg Config) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.Auth(cfg.Verifier, cfg.OpenEndpoints))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		verifier:  cfg.Verifier,
		table:     cfg.Table,
		resolver:  cfg.Resolver,
		forwarder: httpclient.New(0),
		logger:    cfg.Logger.Named("gateway"),
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 開発用トークン発行エンドポイント（認証不要にするため
	// OpenEndpointsに /auth を含める運用を想定）
	auth := s.router.Group("/auth")
	{
		auth.POST("/dev-token", s.handleDevToken())
	}

	// 設置済みルートの確認用エンドポイント（認証必須）
	admin := s.router.Group("/admin")
	{
		admin.GET("/routes", s.handleListRoutes())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	// 残りのパスはすべて動的ルーティングテーブルで転送する
	s.router.NoRoute(s.handleProxy())
}

// handleDevToken は開発用トークンを発行するハンドラを返す。
// 本番環境では無効化すべき。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Identity string `json:"identity"`
		}
		// 本文が無い場合は識別子を採番する
		_ = c.ShouldBindJSON(&req)
		if req.Identity == "" {
			req.Identity = "dev-" + uuid.New().String()
		}

		tokenStr, err := s.verifier.Issue(req.Identity, devTokenTTL)
		if err != nil {
			s.logger.Error("開発用トークンの発行に失敗しました", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    tokenStr,
			"identity": req.Identity,
		})
	}
}

// handleListRoutes は稼働中ルーティングテーブルの内容を返すハンドラを返す。
func (s *Server) handleListRoutes() gin.HandlerFunc {
	return func(c *gin.Context) {
		defs := s.table.Routes()
		routes := make([]gin.H, 0, len(defs))
		for _, def := range defs {
			routes = append(routes, gin.H{
				"route_id":     def.RouteID,
				"service_id":   def.ServiceID,
				"path_pattern": def.PathPattern,
				"target_uri":   def.TargetURI,
			})
		}
		c.JSON(http.StatusOK, gin.H{"routes": routes})
	}
}
