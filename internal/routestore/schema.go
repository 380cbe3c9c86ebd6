package routestore

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。ルート定義はリコンサイラによって全件再計算されるため、
// マイグレーション履歴は持たない。
const schema = `
CREATE TABLE IF NOT EXISTS route_definitions (
    route_id TEXT PRIMARY KEY,
    service_id TEXT NOT NULL,
    path_pattern TEXT NOT NULL,
    target_uri TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_route_definitions_service
    ON route_definitions(service_id);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
