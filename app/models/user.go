package models

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_OPERATOR   = "operator"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// User is a staff operator acting on billing data through the API.
// Operators authenticate with "<key id>.<secret>"; only a bcrypt hash of
// the secret is stored.
type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role             string         `gorm:"type:varchar(50);default:'operator'" json:"role" validate:"oneof=operator admin"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APIKeyID         *string        `gorm:"type:varchar(32);uniqueIndex" json:"api_key_id,omitempty"`
	APIKeyHash       string         `gorm:"type:varchar(100)" json:"-"`
	APIKeyCreatedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"api_key_created_at,omitempty"`
	APIKeyLastUsedAt *time.Time     `gorm:"type:timestamp;default:null" json:"api_key_last_used_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// CreateOperator builds a validated, active operator. An empty role means ROLE_OPERATOR.
func CreateOperator(name, email, role string) (*User, error) {
	if role == "" {
		role = ROLE_OPERATOR
	}
	u := &User{
		Name:   strings.TrimSpace(name),
		Email:  strings.TrimSpace(email),
		Role:   role,
		Status: STATUS_ACTIVE,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// HasActiveAPIKey reports whether the operator can authenticate
func (u *User) HasActiveAPIKey() bool {
	return u.APIKeyID != nil && u.APIKeyHash != ""
}

// IssueAPIKey generates a new key, stores its id and secret hash on the
// struct and returns the raw key. Callers must persist the user.
func (u *User) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	secret := strings.ToLower(apiKeyEncoding.EncodeToString(b))

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	keyID := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := time.Now()
	u.APIKeyID = &keyID
	u.APIKeyHash = string(hash)
	u.APIKeyCreatedAt = &now
	u.APIKeyLastUsedAt = nil

	return fmt.Sprintf("%s.%s", keyID, secret), nil
}

// RevokeAPIKey clears the key so it can no longer authenticate.
func (u *User) RevokeAPIKey() {
	u.APIKeyID = nil
	u.APIKeyHash = ""
	u.APIKeyCreatedAt = nil
	u.APIKeyLastUsedAt = nil
}

// CheckAPIKeySecret compares a secret with the stored hash.
func (u *User) CheckAPIKeySecret(secret string) bool {
	if u.APIKeyHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.APIKeyHash), []byte(secret)) == nil
}

// SplitAPIKey separates a raw key into its lookup id and secret.
func SplitAPIKey(raw string) (string, string, bool) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}
