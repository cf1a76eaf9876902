package models

import "time"

// AuthSession holds the credentials material captured after a successful
// login against one distributor portal. One live session per distributor per
// job; a new login replaces the prior session.
type AuthSession struct {
	Distributor string            `json:"distributor"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	Token       string            `json:"token,omitempty"`
	IssuedAt    time.Time         `json:"issued_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Valid       bool              `json:"valid"`
}

// Alive reports whether the session can still be used at the given instant.
func (s *AuthSession) Alive(now time.Time) bool {
	return s != nil && s.Valid && now.Before(s.ExpiresAt)
}
