package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"
)

// watchWaitTime はブロッキングクエリの最大待ち時間。
const watchWaitTime = 5 * time.Minute

// consulCatalog はConsulカタログAPIのうち本パッケージが使う操作。
// テストでは偽実装を注入する。
type consulCatalog interface {
	Services(q *api.QueryOptions) (map[string][]string, *api.QueryMeta, error)
}

// consulHealth はConsulヘルスAPIのうち本パッケージが使う操作。
type consulHealth interface {
	Service(service, tag string, passingOnly bool, q *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error)
}

// ConsulSource はConsulカタログを情報源とするレジストリスナップショット源。
type ConsulSource struct {
	catalog consulCatalog
	health  consulHealth
	logger  hclog.Logger
}

// NewConsulSource はConsulクライアントからスナップショット源を生成する。
func NewConsulSource(client *api.Client, logger hclog.Logger) *ConsulSource {
	return &ConsulSource{
		catalog: client.Catalog(),
		health:  client.Health(),
		logger:  logger.Named("registry"),
	}
}

// ListServices は現在カタログに登録されているサービス名の一覧を返す。
func (s *ConsulSource) ListServices(ctx context.Context) ([]string, error) {
	services, _, err := s.catalog.Services((&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("サービス一覧の取得に失敗: %w", err)
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	return names, nil
}

// Watch はブロッキングクエリでカタログの変化を監視し、変化のたびに
// notifyへシグナルを送る。notifyが詰まっている間の変化は1回に合流する。
// ctxが取り消されるまで戻らないため、goroutineとして呼び出すこと。
func (s *ConsulSource) Watch(ctx context.Context, notify chan<- struct{}) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	var index uint64
	for {
		opts := &api.QueryOptions{WaitIndex: index, WaitTime: watchWaitTime}
		_, meta, err := s.catalog.Services(opts.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			s.logger.Warn("カタログのブロッキングクエリに失敗", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		// インデックスの巻き戻りは全件再取得で仕切り直す
		if meta.LastIndex < index {
			index = 0
		} else {
			index = meta.LastIndex
		}

		select {
		case <-ctx.Done():
			return
		case notify <- struct{}{}:
		default:
		}
	}
}

// Resolve はサービス識別子を実際に接続可能なインスタンスURLへ解決する。
// ヘルスチェックを通過しているインスタンスの先頭を返す。
// 負荷分散アルゴリズムはここでは扱わない。
func (s *ConsulSource) Resolve(ctx context.Context, serviceID string) (string, error) {
	entries, _, err := s.health.Service(serviceID, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("サービスインスタンスの解決に失敗: service=%s: %w", serviceID, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("稼働中のインスタンスが見つかりません: service=%s", serviceID)
	}

	entry := entries[0]
	addr := entry.Service.Address
	if addr == "" {
		addr = entry.Node.Address
	}
	return fmt.Sprintf("http://%s:%d", addr, entry.Service.Port), nil
}
