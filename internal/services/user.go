package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyshelf/apiserver/internal/store"
	"github.com/studyshelf/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes; truncate explicitly so the
// behavior is the same on hash and verify.
const maxPasswordBytes = 72

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetApproval(ctx context.Context, id int, approved bool) error
	Delete(ctx context.Context, id int) error
	CountMaterialsByOwner(ctx context.Context, ownerID int) (int, error)
}

// RegisterInput carries the fields for creating an account.
type RegisterInput struct {
	Firstname string
	Lastname  string
	Username  string
	Email     string
	Password  string
	Grade     int
	Role      string
}

// UserService encapsulates account use-cases: registration, credential
// checks, approval management, and dismissal.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

// Register creates an account. New accounts default to the student role and
// start unapproved; a teacher must approve them before they can log in.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	if input.Role == "" {
		input.Role = types.RoleStudent
	}
	if input.Role != types.RoleStudent && input.Role != types.RoleTeacher {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}

	if _, err := s.repo.GetByUsername(ctx, input.Username); err == nil {
		return types.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword(passwordBytes(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Firstname:    input.Firstname,
		Lastname:     input.Lastname,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashed),
		Grade:        input.Grade,
		Role:         input.Role,
		IsApproved:   false,
	})
}

// Authenticate verifies a username/password pair. It returns
// ErrInvalidCredentials for both unknown usernames and wrong passwords.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), passwordBytes(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// Approve marks an account as approved.
func (s *UserService) Approve(ctx context.Context, id int) error {
	return s.repo.SetApproval(ctx, id, true)
}

// Revoke withdraws an account's approval. Tokens already issued keep
// working until they expire; the snapshot in the claim is never re-checked.
func (s *UserService) Revoke(ctx context.Context, id int) error {
	return s.repo.SetApproval(ctx, id, false)
}

// Dismiss deletes an account. A user who still owns materials cannot be
// dismissed; delete the materials first.
func (s *UserService) Dismiss(ctx context.Context, id int) error {
	count, err := s.repo.CountMaterialsByOwner(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrUserHasMaterials
	}
	return s.repo.Delete(ctx, id)
}

// UsernameAvailable reports whether a username is free to register.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	return false, err
}

// EmailAvailable reports whether an email is free to register.
func (s *UserService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	return false, err
}
