package registry

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"
)

// fakeCatalog はconsulCatalogの偽実装。
// 呼び出し回数に応じた応答をrespondで差し替える。
type fakeCatalog struct {
	calls   atomic.Int64
	respond func(call int64, q *api.QueryOptions) (map[string][]string, *api.QueryMeta, error)
}

func (f *fakeCatalog) Services(q *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
	return f.respond(f.calls.Add(1), q)
}

// fakeHealth はconsulHealthの偽実装。
type fakeHealth struct {
	entries []*api.ServiceEntry
	err     error
}

func (f *fakeHealth) Service(_, _ string, _ bool, _ *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error) {
	return f.entries, &api.QueryMeta{}, f.err
}

// TestConsulSourceListServices はListServicesメソッドを検証する。
func TestConsulSourceListServices(t *testing.T) {
	t.Parallel()

	t.Run("カタログのサービス名一覧が返ること", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			catalog: &fakeCatalog{
				respond: func(_ int64, _ *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
					return map[string][]string{
						"orders":   nil,
						"payments": nil,
						"consul":   nil,
					}, &api.QueryMeta{LastIndex: 1}, nil
				},
			},
			logger: hclog.NewNullLogger(),
		}

		names, err := src.ListServices(context.Background())
		if err != nil {
			t.Fatalf("ListServices()でエラーが発生: %v", err)
		}

		sort.Strings(names)
		want := []string{"consul", "orders", "payments"}
		if len(names) != len(want) {
			t.Fatalf("サービス数 = %d, want %d", len(names), len(want))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})

	t.Run("カタログ取得エラーが伝播すること", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			catalog: &fakeCatalog{
				respond: func(_ int64, _ *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
					return nil, nil, errors.New("接続拒否")
				},
			},
			logger: hclog.NewNullLogger(),
		}

		if _, err := src.ListServices(context.Background()); err == nil {
			t.Fatal("ListServices()がエラーを返すべき")
		}
	})
}

// TestConsulSourceWatch はWatchメソッドを検証する。
func TestConsulSourceWatch(t *testing.T) {
	t.Parallel()

	t.Run("カタログの変化で通知が届くこと", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			catalog: &fakeCatalog{
				respond: func(call int64, q *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
					if call == 1 {
						return map[string][]string{"orders": nil}, &api.QueryMeta{LastIndex: 5}, nil
					}
					// 2回目以降はctx取り消しまでブロッキングクエリを模倣する
					<-q.Context().Done()
					return nil, nil, q.Context().Err()
				},
			},
			logger: hclog.NewNullLogger(),
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		notify := make(chan struct{}, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			src.Watch(ctx, notify)
		}()

		select {
		case <-notify:
		case <-time.After(5 * time.Second):
			t.Fatal("通知が届かなかった")
		}

		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Watch()がctx取り消し後に終了しなかった")
		}
	})

	t.Run("通知チャネルが詰まっていても監視が止まらないこと", func(t *testing.T) {
		t.Parallel()

		blockFrom := int64(3)
		src := &ConsulSource{
			catalog: &fakeCatalog{
				respond: func(call int64, q *api.QueryOptions) (map[string][]string, *api.QueryMeta, error) {
					if call < blockFrom {
						return map[string][]string{"orders": nil}, &api.QueryMeta{LastIndex: uint64(call * 10)}, nil
					}
					<-q.Context().Done()
					return nil, nil, q.Context().Err()
				},
			},
			logger: hclog.NewNullLogger(),
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// notifyを誰も読まなくても2回分の変化が合流して監視は継続する
		notify := make(chan struct{}, 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			src.Watch(ctx, notify)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Watch()がctx取り消し後に終了しなかった")
		}

		select {
		case <-notify:
		default:
			t.Error("合流した通知が1件も残っていない")
		}
	})
}

// TestConsulSourceResolve はResolveメソッドを検証する。
func TestConsulSourceResolve(t *testing.T) {
	t.Parallel()

	t.Run("稼働中インスタンスのURLが返ること", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			health: &fakeHealth{
				entries: []*api.ServiceEntry{
					{
						Node:    &api.Node{Address: "10.0.0.1"},
						Service: &api.AgentService{Address: "10.0.0.2", Port: 8081},
					},
				},
			},
			logger: hclog.NewNullLogger(),
		}

		got, err := src.Resolve(context.Background(), "orders")
		if err != nil {
			t.Fatalf("Resolve()でエラーが発生: %v", err)
		}
		if got != "http://10.0.0.2:8081" {
			t.Errorf("Resolve() = %q, want %q", got, "http://10.0.0.2:8081")
		}
	})

	t.Run("サービスアドレスが空の場合ノードアドレスが使われること", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			health: &fakeHealth{
				entries: []*api.ServiceEntry{
					{
						Node:    &api.Node{Address: "10.0.0.1"},
						Service: &api.AgentService{Port: 8081},
					},
				},
			},
			logger: hclog.NewNullLogger(),
		}

		got, err := src.Resolve(context.Background(), "orders")
		if err != nil {
			t.Fatalf("Resolve()でエラーが発生: %v", err)
		}
		if got != "http://10.0.0.1:8081" {
			t.Errorf("Resolve() = %q, want %q", got, "http://10.0.0.1:8081")
		}
	})

	t.Run("稼働中インスタンスが無い場合エラーが返ること", func(t *testing.T) {
		t.Parallel()

		src := &ConsulSource{
			health: &fakeHealth{},
			logger: hclog.NewNullLogger(),
		}

		if _, err := src.Resolve(context.Background(), "orders"); err == nil {
			t.Fatal("Resolve()がエラーを返すべき")
		}
	})
}
