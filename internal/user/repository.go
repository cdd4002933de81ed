package user

import (
	"context"

	"github.com/uptrace/bun"

	"todo-serverless/internal/repository"
)

type Repository struct {
	repository.Repository[User]
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{
		Repository: repository.New(db, repository.Descriptor[User]{
			Name:    "user",
			Mutable: []string{"hashed_password"},
		}),
	}
}

// GetByUsername matches case-sensitively.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.Get(ctx, WithUsername(username).Select())
}

func WithUsername(username string) repository.Filter {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.Where("username = ?", username)
	}
}
