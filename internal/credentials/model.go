package credentials

import (
	"strings"
	"time"
)

// DefaultProfile names the credential row used when no profile is configured.
const DefaultProfile = "default"

// Credential is a persisted bearer token for one CLI profile.
type Credential struct {
	Profile   string    `gorm:"column:profile;primaryKey;size:64;not null"`
	Token     string    `gorm:"column:token;size:4096;not null"`
	Username  string    `gorm:"column:username;size:190"`
	SavedAt   time.Time `gorm:"column:saved_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing stored credentials.
func (Credential) TableName() string {
	return "stored_credentials"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
