package todo

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Todo keeps CompletedAt non-nil exactly when IsCompleted is true.
type Todo struct {
	bun.BaseModel `bun:"table:todos,alias:t"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID      uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Name        string     `bun:"name,notnull" json:"name"`
	IsCompleted bool       `bun:"is_completed,notnull" json:"is_completed"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at"`
}

type ListQuery struct {
	// Completed filters by state when set.
	Completed *bool
	Limit     int
	Offset    int
}

type Page struct {
	Data  []*Todo `json:"data"`
	Count int     `json:"count"`
}
