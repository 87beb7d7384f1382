package user

import (
	"errors"
	"time"
)

// User is an account holder who can register for events. Email,
// FirstName, LastName and Phone are PII. They are written and read back
// as plaintext; no encryption at rest is applied to them.
type User struct {
	ID           string    `json:"id"`
	IdentityID   string    `json:"identityId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email is already in use")
	ErrIdentityConflict = errors.New("identity is already linked to another user")
	ErrInactive         = errors.New("user is deactivated")
)

func (u User) Name() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Anonymized returns a copy with PII scrubbed, for erase requests that
// keep the row (and its registrations) but drop identifying data.
func (u User) Anonymized() User {
	u.Email = "erased+" + u.ID + "@invalid"
	u.FirstName = "Erased"
	u.LastName = "User"
	u.Phone = ""
	u.PasswordHash = ""
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
	return u
}
