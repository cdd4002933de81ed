package user

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Username       string    `bun:"username,notnull,unique" json:"username"`
	HashedPassword string    `bun:"hashed_password,notnull" json:"-"`
	JoinedAt       time.Time `bun:"joined_at,notnull" json:"joined_at"`
}
