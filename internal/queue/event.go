// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Email kinds.
const (
	KindPasswordReset   = "password_reset"
	KindPasswordChanged = "password_changed"
)

// EmailEvent asks the mailer to send one notification.  It carries
// everything needed to render the message without querying the database.
type EmailEvent struct {
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Name      string    `json:"name"`
	ResetURL  string    `json:"reset_url,omitempty"`
	ExpiresIn string    `json:"expires_in,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
