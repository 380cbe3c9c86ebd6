// Package middleware はエッジゲートウェイのリクエスト経路で使用する
// Ginミドルウェアを提供する。
//
// ベアラートークンを検証してX-USERヘッダーを注入する認証ゲートのほか、
// CORS設定、パニックリカバリ、リクエストID付与を含む。ミドルウェアの
// 適用順序はinternal/gateway側で明示的に固定し、認証ゲートはプロキシ転送
// より必ず前に置く。
package middleware
