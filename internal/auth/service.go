package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"todo-serverless/internal/repository"
	"todo-serverless/internal/token"
	"todo-serverless/internal/user"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// dummyPassword is hashed once and verified against when a sign-in names an
// unknown user, so both failure paths pay for one bcrypt comparison.
const dummyPassword = "dummy-password-for-timing"

type Service struct {
	users  Users
	hasher PasswordHasher
	tokens TokenCodec
	now    func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

func NewService(users Users, hasher PasswordHasher, tokens TokenCodec) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
	}
}

func (s *Service) SignUp(ctx context.Context, username, password string) (token.Pair, error) {
	u, err := s.create(ctx, username, password)
	if err != nil {
		return token.Pair{}, err
	}
	return s.issue(u.ID)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (token.Pair, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, err
		}
		if err := s.burnVerify(ctx, password); err != nil {
			return token.Pair{}, err
		}
		return token.Pair{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, u.HashedPassword)
	if err != nil {
		return token.Pair{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return token.Pair{}, ErrInvalidCredentials
	}

	return s.issue(u.ID)
}

// Refresh trades a valid refresh-audience token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	userID, err := s.tokens.Verify(refreshToken, token.Refresh)
	if err != nil {
		return token.Pair{}, err
	}

	u, err := s.lookup(ctx, userID)
	if err != nil {
		return token.Pair{}, err
	}
	return s.issue(u.ID)
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	u, err := s.lookup(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, oldPassword, u.HashedPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hashed, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.HashedPassword = hashed

	if _, err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", user.ErrNotFound, userID)
		}
		return err
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.lookup(ctx, userID)
}

// Authenticate resolves an access token to its subject without touching storage.
func (s *Service) Authenticate(accessToken string) (uuid.UUID, error) {
	return s.tokens.Verify(accessToken, token.Access)
}

// EnsureUser creates the seed account unless the username is already taken.
func (s *Service) EnsureUser(ctx context.Context, username, password string) error {
	_, err := s.create(ctx, username, password)
	if errors.Is(err, ErrUserAlreadyExists) {
		return nil
	}
	return err
}

func (s *Service) create(ctx context.Context, username, password string) (*user.User, error) {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid v7: %w", err)
	}

	u, err := s.users.Insert(ctx, &user.User{
		ID:             id,
		Username:       username,
		HashedPassword: hashed,
		JoinedAt:       s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		// lost a race with a concurrent sign-up of the same name
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) lookup(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", user.ErrNotFound, userID)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) issue(userID uuid.UUID) (token.Pair, error) {
	pair, err := s.tokens.Issue(userID)
	if err != nil {
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

func (s *Service) burnVerify(ctx context.Context, password string) error {
	hashed, err := s.dummy(ctx)
	if err != nil {
		return fmt.Errorf("hash dummy password: %w", err)
	}

	if _, err := s.hasher.Verify(ctx, password, hashed); err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

// dummy retries on the next call if hashing failed.
func (s *Service) dummy(ctx context.Context) (string, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash != "" {
		return s.dummyHash, nil
	}
	hashed, err := s.hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return "", err
	}
	s.dummyHash = hashed
	return hashed, nil
}
