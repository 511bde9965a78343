package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/nfrund/pulse/internal/domain"
	"github.com/surrealdb/surrealdb.go"
)

// UserStore implements domain.UserRepository on SurrealDB. Account
// creation and credential handling live in SurrealDB's access scope; this
// store only resolves tokens and lists users for the sidebar.
type UserStore struct {
	db     *surrealdb.DB
	ns     string
	dbName string
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, ns, dbName string) *UserStore {
	return &UserStore{db: db, ns: ns, dbName: dbName}
}

// normalizeUserID makes sure the id carries the user table prefix.
func normalizeUserID(id string) string {
	if !strings.HasPrefix(id, "user:") {
		return "user:" + id
	}
	return id
}

// SignIn exchanges credentials for a session token using SurrealDB's record
// access. The shape matches the JavaScript SDK's sign-in payload.
func (s *UserStore) SignIn(ctx context.Context, username, password string) (string, error) {
	// Format matches the JavaScript SDK's implementation: lowercase ns/db
	// plus the access control namespace.
	token, err := s.db.SignIn(ctx, map[string]any{
		"ns":       s.ns,
		"db":       s.dbName,
		"ac":       "account",
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", domain.ErrInvalidCredentials
	}
	return token, nil
}

// Authenticate validates a session token and returns the associated user.
func (s *UserStore) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	// This validates the token and sets the auth context for subsequent
	// queries on this connection.
	if err := s.db.Authenticate(ctx, token); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	users, err := Query[userRecord](ctx, s.db, "SELECT * FROM $auth", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated user: %w", err)
	}
	if len(users) == 0 || users[0].ID == nil {
		return nil, fmt.Errorf("no authenticated user found")
	}

	return users[0].toDomain(), nil
}

// FindByID fetches a single user, or nil when it does not exist.
func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := "SELECT * FROM type::thing($id)"
	params := map[string]any{"id": normalizeUserID(id)}

	user, err := QueryOne[userRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	return user.toDomain(), nil
}

// ListExcept returns every user but the given one, for the sidebar.
func (s *UserStore) ListExcept(ctx context.Context, id string) ([]domain.UserSummary, error) {
	query := `
		SELECT id, username, fullName, avatarUrl FROM user
		WHERE id != type::thing($id)
		ORDER BY username ASC
	`
	params := map[string]any{"id": normalizeUserID(id)}

	users, err := Query[userRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	summaries := make([]domain.UserSummary, len(users))
	for i := range users {
		summaries[i] = users[i].toSummary()
	}
	return summaries, nil
}
