// Package registry はサービスレジストリ（Consul）からの
// メンバーシップスナップショット取得と変化通知を提供する。
//
// スナップショットはカタログに登録されたサービス名の集合であり、
// 変化通知はブロッキングクエリで検知してチャネルへシグナルを送る。
// ハートビートやリース更新などレジスタプロトコル自体には関与しない。
package registry
