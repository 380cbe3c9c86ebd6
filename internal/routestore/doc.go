// Package routestore はゲートウェイに設置するルート定義の永続化を提供する。
//
// ルート定義はサービス識別子から決定論的に導出され、SQLiteのテーブルに
// 保存される。削除は対象が存在しなくても成功として扱い、登録は
// 削除してから挿入する冪等な操作として実装する。リコンサイラが
// 唯一の書き込み元であり、ゲートウェイ本体は読むだけである。
package routestore
