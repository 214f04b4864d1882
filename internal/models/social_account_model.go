package models

import (
	"time"
)

// SocialAccount holds the publishing identity for one platform. Tokens are
// stored encrypted; Credentials carries the decrypted form.
type SocialAccount struct {
	ID             int64     `db:"id" json:"id"`
	Platform       string    `db:"platform" json:"platform"`
	AccountID      string    `db:"account_id" json:"account_id"`
	AccountName    string    `db:"account_name" json:"account_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type Credentials struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (c Credentials) Present() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}
