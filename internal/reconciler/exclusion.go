package reconciler

import "strings"

// ExclusionPolicy はルート化してはならないサービス識別子の静的な述語。
// ゲートウェイ自身やレジストリクライアントなどの基盤サービスを
// ルーティング対象から外すために使う。判定は大文字小文字を区別しない。
type ExclusionPolicy struct {
	// excluded は小文字に正規化した除外対象の集合。
	excluded map[string]struct{}
}

// NewExclusionPolicy は指定された識別子群を除外するポリシーを生成する。
func NewExclusionPolicy(serviceIDs []string) *ExclusionPolicy {
	excluded := make(map[string]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		excluded[strings.ToLower(id)] = struct{}{}
	}
	return &ExclusionPolicy{excluded: excluded}
}

// Excluded は識別子が除外対象かどうかを返す。
func (p *ExclusionPolicy) Excluded(serviceID string) bool {
	_, ok := p.excluded[strings.ToLower(serviceID)]
	return ok
}
