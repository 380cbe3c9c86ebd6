// Package httpclient はバックエンドサービスへのHTTP転送クライアントを提供する。
//
// ゲートウェイの動的プロキシがルーティングテーブルで解決した宛先へ
// リクエストを転送する際に使用する。ホップ単位のヘッダーを取り除き、
// それ以外のヘッダーと本文をそのまま引き継ぐ。
package httpclient
