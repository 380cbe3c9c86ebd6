package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout はバックエンドへの転送1回あたりの既定タイムアウト。
const defaultTimeout = 30 * time.Second

// hopByHopHeaders は転送時に引き継いではならないホップ単位のヘッダー。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client はバックエンドサービスへリクエストを転送するHTTPクライアント。
// ゲートウェイの動的プロキシから使用される。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は転送用HTTPクライアントを生成する。
// timeoutが0以下の場合は既定値を使う。
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Forward は受信したリクエストをtargetURLのバックエンドへ転送し、
// 応答をそのまま返す。呼び出し側が応答のBodyを閉じること。
// headerはホップ単位のヘッダーを除いてすべて引き継がれるため、
// 信頼ヘッダー（X-USER）の内容は呼び出し前に確定していなければならない。
func (c *Client) Forward(ctx context.Context, method, targetURL string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}

	req.Header = header.Clone()
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("バックエンドへの転送に失敗: %w", err)
	}
	return resp, nil
}
