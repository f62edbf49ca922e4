package domain

import "time"

// Session is the in-memory view of the current credentials. The access
// token and expiry are always set or cleared together.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (s *Session) HasAccessToken() bool {
	return s != nil && s.AccessToken != ""
}

// ExpiresWithin reports whether the session expires inside the given
// margin. A session without a recorded expiry is treated as expired.
func (s *Session) ExpiresWithin(margin time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(s.ExpiresAt.Add(-margin))
}

// CredentialRecord is one row of the durable key-value credential store.
type CredentialRecord struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"size:4096;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CredentialRecord) TableName() string { return "credentials" }
