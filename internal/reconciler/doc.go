// Package reconciler はレジストリのメンバーシップとゲートウェイの
// ルート定義を一致させ続けるルートリコンサイラを提供する。
//
// ローカルに保持する「登録済みルート集合」とレジストリスナップショットの
// 差分を計算し、除外対象を取り除いた上でルート定義ストアへ削除・追加を
// 発行する。1パスは全メンバーシップの再計算による削除してから挿入で
// 構成され、途中で失敗してもパス自体が冪等なため次のトリガーで自己修復する。
package reconciler
