package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/nao1215/edgegate/internal/routestore"
)

// reloadTimeout はリフレッシュ通知1回あたりの再読込タイムアウト。
const reloadTimeout = 10 * time.Second

// RouteLister はルート定義ストアからの読み出し操作。
type RouteLister interface {
	List(ctx context.Context) ([]routestore.RouteDefinition, error)
}

// RouteTable は稼働中ルーティングテーブルのメモリ上のスナップショット。
//
// ルート定義ストアの内容をパスの先頭セグメントで索引した写しであり、
// リコンサイラからのリフレッシュ通知（PublishRefresh）で再読込される。
// リクエスト処理中の参照と再読込が競合するためRWMutexで保護する。
type RouteTable struct {
	lister RouteLister
	logger hclog.Logger

	mu sync.RWMutex
	// byPrefix はパス先頭セグメント（小文字）からルート定義への索引。
	byPrefix map[string]routestore.RouteDefinition
}

// NewRouteTable は空のルーティングテーブルを生成する。
// 最初の内容はReloadまたはPublishRefreshで読み込まれる。
func NewRouteTable(lister RouteLister, logger hclog.Logger) *RouteTable {
	return &RouteTable{
		lister:   lister,
		logger:   logger.Named("routetable"),
		byPrefix: make(map[string]routestore.RouteDefinition),
	}
}

// Reload はルート定義ストアの現在の内容でテーブルを置き換える。
func (t *RouteTable) Reload(ctx context.Context) error {
	defs, err := t.lister.List(ctx)
	if err != nil {
		return err
	}

	byPrefix := make(map[string]routestore.RouteDefinition, len(defs))
	for _, def := range defs {
		// PathPatternは "/<小文字サービス名>/**" の形式
		prefix := strings.SplitN(strings.TrimPrefix(def.PathPattern, "/"), "/", 2)[0]
		byPrefix[prefix] = def
	}

	t.mu.Lock()
	t.byPrefix = byPrefix
	t.mu.Unlock()

	t.logger.Info("ルーティングテーブルを再読込しました", "routes", len(byPrefix))
	return nil
}

// PublishRefresh はルート変更の通知を受けてテーブルを再読込する。
// リコンサイラから投げっぱなしで呼ばれるため、失敗はログに残すだけで
// 呼び出し元へは返さない。古いテーブルは次の通知まで使われ続ける。
func (t *RouteTable) PublishRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	if err := t.Reload(ctx); err != nil {
		t.logger.Error("ルーティングテーブルの再読込に失敗しました", "error", err)
	}
}

// Match はリクエストパスに対応するルート定義を返す。
// パスの先頭セグメントを小文字化して照合する。
func (t *RouteTable) Match(path string) (routestore.RouteDefinition, bool) {
	prefix := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if prefix == "" {
		return routestore.RouteDefinition{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	def, ok := t.byPrefix[strings.ToLower(prefix)]
	return def, ok
}

// Routes は現在のテーブル内容をルートID順に返す。
func (t *RouteTable) Routes() []routestore.RouteDefinition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	defs := make([]routestore.RouteDefinition, 0, len(t.byPrefix))
	for _, def := range t.byPrefix {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].RouteID < defs[j].RouteID })
	return defs
}
