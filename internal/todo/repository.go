package todo

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"todo-serverless/internal/repository"
)

func NewRepository(db bun.IDB) *repository.BunRepository[Todo] {
	return repository.New(db, repository.Descriptor[Todo]{
		Name:    "todo",
		Mutable: []string{"name", "is_completed", "updated_at", "completed_at"},
	})
}

func OwnedBy(userID uuid.UUID) repository.Filter {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.Where("user_id = ?", userID)
	}
}

// Completed is a no-op for nil.
func Completed(state *bool) repository.Filter {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		if state == nil {
			return q
		}
		return q.Where("is_completed = ?", *state)
	}
}

func NewestFirst() repository.SelectCriteria {
	return repository.OrderBy("created_at DESC, id DESC")
}
