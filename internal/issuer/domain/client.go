package domain

import "time"

// ServiceClient is a registered machine caller of the client_credentials
// grant. The secret is stored as an argon2id hash, never raw.
type ServiceClient struct {
	ID          string
	Name        string
	SecretHash  string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
