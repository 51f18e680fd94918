// Package token はアクセストークン・リフレッシュトークンの署名と検証を提供する。
// 状態を持たない純粋な暗号プリミティブで、HS256署名のJWTを使用する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンに対して返る。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不一致、形式不正、異なるシークレットで署名されたトークンに対して返る。
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims はトークンに埋め込まれるクレーム。
// UserIDに加え、iat・exp・jtiを標準クレームとして保持する。
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// SignerConfig はSignerの設定。
type SignerConfig struct {
	Secret []byte
	TTL    time.Duration
	// Now は現在時刻を返す関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Signer は1種類のトークン（アクセスまたはリフレッシュ）の署名と検証を行う。
// アクセス用とリフレッシュ用で別のシークレットを持つSignerを生成すること。
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner はSignerを生成する。
// シークレットが空、またはTTLが0以下の場合は起動時に失敗させるためエラーを返す。
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signer requires a secret")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("invalid token TTL: %s", cfg.TTL)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		now:    now,
	}, nil
}

// TTL はこのSignerが発行するトークンの有効期間を返す。
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign はuserIDを埋め込んだトークンを発行する。
// 有効期限は now + TTL を秒単位に切り捨てた時刻で、Verifyはその時刻に達した時点で期限切れとする。
// このため実際の有効期間はTTLより最大1秒短くなる。返すClaimsのExpiresAtはトークン内の値と一致する。
// jtiにUUIDを入れるため、同一ユーザー・同一秒の発行でも文字列は重複しない。
func (s *Signer) Sign(userID string) (string, *Claims, error) {
	if userID == "" {
		return "", nil, errors.New("user ID is required")
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, claims, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 有効期限切れはErrTokenExpired、それ以外の失敗はすべてErrTokenInvalidとなる。
// 署名検証は期限検証より先に行われるため、別シークレットで署名された期限切れトークンはErrTokenInvalidになる。
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
