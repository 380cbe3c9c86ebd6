package routestore

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestStore はテスト用の一時SQLiteストアを生成する。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "routes.db"))
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestDerive はルート定義の導出を検証する。
func TestDerive(t *testing.T) {
	t.Parallel()

	t.Run("サービス識別子から決定論的に導出されること", func(t *testing.T) {
		t.Parallel()

		def := Derive("ORDERS")
		if def.RouteID != "ORDERS_route" {
			t.Errorf("RouteID = %q, want %q", def.RouteID, "ORDERS_route")
		}
		if def.ServiceID != "ORDERS" {
			t.Errorf("ServiceID = %q, want %q", def.ServiceID, "ORDERS")
		}
		if def.PathPattern != "/orders/**" {
			t.Errorf("PathPattern = %q, want %q", def.PathPattern, "/orders/**")
		}
		if def.TargetURI != "lb://ORDERS" {
			t.Errorf("TargetURI = %q, want %q", def.TargetURI, "lb://ORDERS")
		}
	})

	t.Run("RouteIDがDeriveの結果と一致すること", func(t *testing.T) {
		t.Parallel()

		if got, want := RouteID("payments"), Derive("payments").RouteID; got != want {
			t.Errorf("RouteID() = %q, want %q", got, want)
		}
	})
}

// TestStore はSQLiteストアの操作を検証する。
func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("挿入したルート定義を取得できること", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Insert(ctx, Derive("orders")); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if err := store.Insert(ctx, Derive("payments")); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}

		defs, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List()でエラーが発生: %v", err)
		}
		if len(defs) != 2 {
			t.Fatalf("ルート定義数 = %d, want 2", len(defs))
		}
		if defs[0].PathPattern != "/orders/**" || defs[1].PathPattern != "/payments/**" {
			t.Errorf("PathPattern = %q, %q, want /orders/**, /payments/**", defs[0].PathPattern, defs[1].PathPattern)
		}
	})

	t.Run("存在しないルートの削除が成功すること", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)

		if err := store.Delete(context.Background(), "missing_route"); err != nil {
			t.Errorf("存在しないルートのDelete()がエラーを返した: %v", err)
		}
	})

	t.Run("削除してから挿入で更新できること", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		ctx := context.Background()

		def := Derive("orders")
		if err := store.Insert(ctx, def); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if err := store.Delete(ctx, def.RouteID); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		if err := store.Insert(ctx, def); err != nil {
			t.Fatalf("再Insert()でエラーが発生: %v", err)
		}

		defs, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List()でエラーが発生: %v", err)
		}
		if len(defs) != 1 {
			t.Errorf("ルート定義数 = %d, want 1", len(defs))
		}
	})

	t.Run("削除後はListに現れないこと", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		ctx := context.Background()

		if err := store.Insert(ctx, Derive("orders")); err != nil {
			t.Fatalf("Insert()でエラーが発生: %v", err)
		}
		if err := store.Delete(ctx, RouteID("orders")); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}

		defs, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List()でエラーが発生: %v", err)
		}
		if len(defs) != 0 {
			t.Errorf("ルート定義数 = %d, want 0", len(defs))
		}
	})
}
