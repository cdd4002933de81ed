package auth

import (
	"context"

	"github.com/google/uuid"

	"todo-serverless/internal/password"
	"todo-serverless/internal/token"
	"todo-serverless/internal/user"
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByUsername(ctx context.Context, username string) (*user.User, error)
	Insert(ctx context.Context, u *user.User) (*user.User, error)
	Update(ctx context.Context, u *user.User) (*user.User, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hashed string) (bool, error)
}

type TokenCodec interface {
	Issue(userID uuid.UUID) (token.Pair, error)
	Verify(raw string, expected token.Audience) (uuid.UUID, error)
}

var (
	_ Users          = (*user.Repository)(nil)
	_ PasswordHasher = (*password.Hasher)(nil)
	_ TokenCodec     = (*token.Codec)(nil)
)
