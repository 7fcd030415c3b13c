package auth

import (
	"context"
	"errors"

	"github.com/neftie/neftie/backend/internal/models"
)

// ErrNoPassword is returned when creating a user without a staged password.
var ErrNoPassword = errors.New("new user has no password")

// UserStore is the raw credential persistence. Implementations return
// store.ErrDuplicate on unique violations and store.ErrNotFound on misses.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// CredentialStore hashes staged passwords on the way into a UserStore. A
// user saved without a staged password keeps its stored hash as is.
type CredentialStore struct {
	users  UserStore
	hasher PasswordHasher
}

func NewCredentialStore(users UserStore, hasher PasswordHasher) *CredentialStore {
	return &CredentialStore{users: users, hasher: hasher}
}

// Create persists a new user; u must carry a staged password.
func (s *CredentialStore) Create(ctx context.Context, u *models.User) error {
	if _, staged := u.PendingPassword(); !staged {
		return ErrNoPassword
	}
	if err := s.hashPending(u); err != nil {
		return err
	}
	return s.users.CreateUser(ctx, u)
}

// Save writes profile changes, hashing the password only when one is staged.
func (s *CredentialStore) Save(ctx context.Context, u *models.User) error {
	if err := s.hashPending(u); err != nil {
		return err
	}
	return s.users.UpdateUser(ctx, u)
}

func (s *CredentialStore) hashPending(u *models.User) error {
	plain, staged := u.PendingPassword()
	if !staged {
		return nil
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return err
	}
	u.CommitPassword(hash)
	return nil
}
