// Package model はドメインモデルを定義する。
package model

import "time"

// User はファイルストレージAPIの利用ユーザーを表す。
// email と phone はそれぞれ一意。Password にはbcryptハッシュを保持する。
type User struct {
	ID        string
	Email     string
	Phone     string
	Password  string
	CreatedAt time.Time
}

// RefreshToken は発行済みリフレッシュトークンの記録を表す。
// 識別キーはトークン文字列そのもので、1ユーザーが複数の記録を持てる（マルチデバイスセッション）。
// 作成後に更新されることはなく、ログアウト時に削除される。
type RefreshToken struct {
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair はサインアップ・サインイン時に返すアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
