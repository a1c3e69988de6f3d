package model

import "time"

// User mirrors a row of the `users` table.  Email is stored as given (case-sensitive) and
// is unique; PasswordHash holds a digest in one of the supported formats.
type User struct {
	ID           string     // users.id (uuid)
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Name         string     // users.name
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
	LastLoginAt  *time.Time // users.last_login_at (nullable)
}

// PublicUser is the user representation returned to clients.
type PublicUser struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt, LastLoginAt: u.LastLoginAt}
}

// Session models a row of `user_sessions`.  Only the SHA-256 of the token
// handed to the client is stored.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
	IsActive   bool
}

// ActivityLog is an audit record of a user action.
type ActivityLog struct {
	ID           string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}
