//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	sg "github.com/panyam/secretgate"
)

// UserModel is the GORM model for users.
// Optional identifiers are pointers so absent values are stored as NULL.
type UserModel struct {
	ID           string        `gorm:"primaryKey;size:64"`
	Username     *string       `gorm:"uniqueIndex;size:255"`
	PasswordHash []byte        `gorm:"column:password_hash"`
	Salt         []byte        `gorm:"column:salt"`
	GoogleID     *string       `gorm:"column:google_id;uniqueIndex;size:255"`
	FacebookID   *string       `gorm:"column:facebook_id;uniqueIndex;size:255"`
	Secrets      []SecretModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time     `gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// SecretModel is the GORM model for secrets
type SecretModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"size:64;index;not null"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (SecretModel) TableName() string {
	return "secrets"
}

// SessionModel is the GORM model backing the scs session store
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"index;not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *UserModel) ToUser() *sg.User {
	out := &sg.User{
		ID:           m.ID,
		Username:     deref(m.Username),
		PasswordHash: m.PasswordHash,
		Salt:         m.Salt,
		GoogleID:     deref(m.GoogleID),
		FacebookID:   deref(m.FacebookID),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, s := range m.Secrets {
		out.Secrets = append(out.Secrets, sg.Secret{Content: s.Content, CreatedAt: s.CreatedAt})
	}
	return out
}

// providerColumn returns the column holding the subject id for a provider
func providerColumn(p sg.Provider) (string, error) {
	switch p {
	case sg.ProviderGoogle:
		return "google_id", nil
	case sg.ProviderFacebook:
		return "facebook_id", nil
	}
	return "", sg.ErrUnknownProvider
}

func (m *UserModel) setSubjectID(p sg.Provider, subjectID string) {
	switch p {
	case sg.ProviderGoogle:
		m.GoogleID = &subjectID
	case sg.ProviderFacebook:
		m.FacebookID = &subjectID
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
