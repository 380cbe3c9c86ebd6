package routestore

import "strings"

// routeIDSuffix はサービス識別子からルートIDを導出する際の固定接尾辞。
const routeIDSuffix = "_route"

// RouteDefinition はゲートウェイの動的ルーティングテーブルに設置する
// 1件のルート定義を表す。サービス識別子からDeriveで導出され、
// ルート定義ストア以外には永続化されない。
type RouteDefinition struct {
	// RouteID はルートの一意識別子（サービス識別子 + "_route"）。
	RouteID string
	// ServiceID は対象バックエンドのサービス識別子。
	ServiceID string
	// PathPattern はこのルートが受け付けるパスパターン（"/<小文字サービス名>/**"）。
	PathPattern string
	// TargetURI は負荷分散ディスパッチ用の間接参照URI（"lb://<サービス名>"）。
	TargetURI string
}

// Derive はサービス識別子からルート定義を導出する。
// 導出は決定論的で、同じ識別子からは常に同じ定義が得られる。
func Derive(serviceID string) RouteDefinition {
	return RouteDefinition{
		RouteID:     serviceID + routeIDSuffix,
		ServiceID:   serviceID,
		PathPattern: "/" + strings.ToLower(serviceID) + "/**",
		TargetURI:   "lb://" + serviceID,
	}
}

// RouteID はサービス識別子に対応するルートIDを返す。
// 削除時など、定義全体を導出するまでもない場面で使う。
func RouteID(serviceID string) string {
	return serviceID + routeIDSuffix
}
