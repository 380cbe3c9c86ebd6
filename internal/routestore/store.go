package routestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store はSQLiteを使ったルート定義ストア。
// 1ルートの追加・削除はストア境界でアトミックに行われる。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// Open は指定パスのSQLiteデータベースを開き、スキーマを初期化して
// ルート定義ストアを生成する。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// SQLiteの書き込みは単一ライターのため接続を1本に絞り、
	// リコンサイラの並行したルート操作を接続側で直列化する
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Delete は指定ルートIDのルート定義を削除する。
// 対象が存在しない場合も成功として扱う。
func (s *Store) Delete(ctx context.Context, routeID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM route_definitions WHERE route_id = ?", routeID); err != nil {
		return fmt.Errorf("ルート定義の削除に失敗: route_id=%s: %w", routeID, err)
	}
	return nil
}

// Insert はルート定義を挿入する。
// 同一ルートIDが残っている場合は上書きせずエラーになるため、
// 呼び出し側は先にDeleteしてから挿入する（削除してから挿入の冪等更新）。
func (s *Store) Insert(ctx context.Context, def RouteDefinition) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO route_definitions (route_id, service_id, path_pattern, target_uri, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'))`,
		def.RouteID, def.ServiceID, def.PathPattern, def.TargetURI); err != nil {
		return fmt.Errorf("ルート定義の挿入に失敗: route_id=%s: %w", def.RouteID, err)
	}
	return nil
}

// List は設置済みのルート定義をルートID順にすべて返す。
func (s *Store) List(ctx context.Context) ([]RouteDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT route_id, service_id, path_pattern, target_uri FROM route_definitions ORDER BY route_id")
	if err != nil {
		return nil, fmt.Errorf("ルート定義の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []RouteDefinition
	for rows.Next() {
		var def RouteDefinition
		if err := rows.Scan(&def.RouteID, &def.ServiceID, &def.PathPattern, &def.TargetURI); err != nil {
			return nil, fmt.Errorf("ルート定義の読み取りに失敗: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}
