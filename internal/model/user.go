package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalix/accounts/internal/credential"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultRoles is the allow-list used when a route names no roles.
var DefaultRoles = []Role{RoleUser, RoleAdmin}

// Status is the lifecycle state of an account. Only active accounts may log in
// or hold a valid session.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
)

// User represents an account in the system
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Email          string         `gorm:"size:255;not null;uniqueIndex:idx_users_email_active,where:deleted_at IS NULL"`
	FirstName      string         `gorm:"size:255"`
	LastName       string         `gorm:"size:255"`
	Role           Role           `gorm:"size:16;not null;default:user"`
	Status         Status         `gorm:"size:16;not null;default:active"`
	PasswordHash   string         `gorm:"column:password;size:255"`
	OTPSecret      *string        `gorm:"column:totp"`
	LastLoggedInAt *string        `gorm:"size:32"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// TableName returns the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns the identifier and fills defaults.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

// BeforeSave keeps the stored email in canonical form.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword replaces the stored hash with a freshly salted hash of plain.
// This is the only place a password is hashed.
func (u *User) SetPassword(plain string) error {
	hash, err := credential.HashPassword(plain)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// ValidatePassword reports whether candidate matches the stored hash.
func (u *User) ValidatePassword(candidate string) bool {
	return credential.ComparePassword(u.PasswordHash, candidate)
}

// ValidateOTP checks code against the account's one-time-password secret for
// the current step only.
func (u *User) ValidateOTP(code string, opts credential.OTPOptions, now time.Time) bool {
	if u.OTPSecret == nil {
		return false
	}
	return credential.ValidateOTP(*u.OTPSecret, code, opts, now)
}

// GenerateOTP returns the code for the step containing at.
func (u *User) GenerateOTP(opts credential.OTPOptions, at time.Time) (string, error) {
	if u.OTPSecret == nil {
		return "", credential.ErrNoOTPSecret
	}
	return credential.GenerateOTP(*u.OTPSecret, opts, at)
}

// HasRole reports whether the account's role is one of roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// IsActive reports whether the account may log in.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Watermark returns the last-login watermark in epoch milliseconds. ok is
// false when the account has never logged in.
func (u *User) Watermark() (ms int64, ok bool, err error) {
	if u.LastLoggedInAt == nil || *u.LastLoggedInAt == "" {
		return 0, false, nil
	}
	ms, err = strconv.ParseInt(*u.LastLoggedInAt, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return ms, true, nil
}

// FormatWatermark renders an epoch-millisecond watermark the way it is stored.
func FormatWatermark(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

// Profile is the client-facing view of a User. It never carries the password
// hash, the OTP secret or the deletion timestamp.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	LastLoggedInAt *string   `json:"lastLoggedInAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Profile returns the sanitized view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		Status:         u.Status,
		LastLoggedInAt: u.LastLoggedInAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
