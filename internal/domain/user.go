package domain

import "context"

// User represents the core user model in the application domain.
type User struct {
	ID        string  `json:"id,omitempty"`
	Username  string  `json:"username"`
	FullName  string  `json:"fullName,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// UserSummary is the trimmed shape returned to the sidebar listing. It never
// carries credential material.
type UserSummary struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  string  `json:"fullName,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Summary converts a full user into its listing shape.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
}

// CredentialVerifier exchanges user credentials for a session token. It is
// the issuing half of the authentication collaborator; UserRepository holds
// the validating half.
type CredentialVerifier interface {
	SignIn(ctx context.Context, username, password string) (string, error)
}

// UserRepository is the authentication collaborator's storage contract.
// Session tokens are validated here; the messaging core never trusts a
// client-claimed identity.
type UserRepository interface {
	// Authenticate resolves a session token to the user it belongs to.
	Authenticate(ctx context.Context, token string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// ListExcept returns every known user but the given one, for the
	// conversation sidebar.
	ListExcept(ctx context.Context, id string) ([]UserSummary, error)
}
