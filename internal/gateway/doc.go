// Package gateway はエッジゲートウェイ本体の内部実装を提供する。
//
// リコンサイラが設置したルート定義をメモリ上のルーティングテーブルへ
// 読み込み、受信リクエストを認証ゲート通過後にバックエンドへ転送する。
// 外部からアクセス可能な唯一の入口であり、セキュリティの境界線として
// 機能する。ルーティングテーブルはリフレッシュ通知を受けて再読込される。
package gateway
