// Package token はベアラートークンの検証と発行を提供する。
//
// 共有秘密鍵によるHMAC-SHA256署名のJWTを扱う。検証は毎回署名から行い、
// 結果をキャッシュしない（対称鍵検証は十分高速なため）。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 検証失敗の種別。呼び出し側はすべて同一の「認証失敗」として扱い、
// 種別は診断ログにのみ使用する。
var (
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
	// ErrMalformed はトークンの解析または署名検証に失敗したことを表す。
	ErrMalformed = errors.New("トークンの形式または署名が不正です")
	// ErrEmptyIdentity は署名は正しいがsubjectクレームが空であることを表す。
	ErrEmptyIdentity = errors.New("トークンにsubjectクレームが含まれていません")
)

// issuer は本ゲートウェイが発行するトークンのiss値。
const issuer = "edgegate"

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// 認証済み利用者の識別子はsubjectクレームで運ぶ。
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier は固定の秘密鍵に対してトークンを検証する。
// 副作用を持たず、並行呼び出しに対して安全である。
type Verifier struct {
	// secret はHMAC署名用の共有秘密鍵。
	secret []byte
}

// NewVerifier は指定された共有秘密鍵を使うVerifierを生成する。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify はトークンを検証し、subjectクレームの識別子を返す。
// 失敗時はErrExpired、ErrMalformed、ErrEmptyIdentityのいずれかを包んだ
// エラーを返す。署名が正しくてもsubjectが空のトークンは無効として扱う。
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("空のトークン: %w", ErrMalformed)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("トークンの検証に失敗: %w", ErrExpired)
		}
		return "", fmt.Errorf("トークンの検証に失敗: %w", ErrMalformed)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("トークンの検証に失敗: %w", ErrMalformed)
	}

	if claims.Subject == "" {
		return "", ErrEmptyIdentity
	}
	return claims.Subject, nil
}

// Issue は指定された識別子をsubjectに持つトークンを発行する。
// 開発用トークン発行エンドポイントから呼び出される。
func (v *Verifier) Issue(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("識別子が空のためトークンを発行できません")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Mask はログ出力用にトークン値を伏せ字にする。
// 先頭と末尾の数文字だけを残し、秘密情報がログへ漏れることを防ぐ。
func Mask(tokenString string) string {
	const visible = 4
	if len(tokenString) <= visible*2 {
		return "****"
	}
	return tokenString[:visible] + "..." + tokenString[len(tokenString)-visible:]
}
