package todo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"todo-serverless/internal/repository"
	"todo-serverless/internal/user"
)

var (
	ErrNotFound  = errors.New("todo not found")
	ErrForbidden = errors.New("todo belongs to another user")
)

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Service is the only place that checks todo ownership. Concurrent writes to
// the same todo are last-write-wins.
type Service struct {
	todos repository.Repository[Todo]
	users UserLookup
	now   func() time.Time
}

func NewService(todos repository.Repository[Todo], users UserLookup) *Service {
	return &Service{todos: todos, users: users, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Todo, error) {
	return s.owned(ctx, userID, id)
}

// List returns one page and the number of todos matching the filter across
// all pages.
func (s *Service) List(ctx context.Context, userID uuid.UUID, query ListQuery) (Page, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return Page{}, err
	}

	filter := []repository.SelectCriteria{OwnedBy(userID).Select(), Completed(query.Completed).Select()}

	todos, err := s.todos.Select(ctx, append(filter, NewestFirst(), repository.Paginate(query.Limit, query.Offset))...)
	if err != nil {
		return Page{}, err
	}
	count, err := s.todos.Count(ctx, filter...)
	if err != nil {
		return Page{}, err
	}

	return Page{Data: todos, Count: count}, nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (*Todo, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := s.timestamp()
	return s.todos.Insert(ctx, &Todo{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) Rename(ctx context.Context, userID, id uuid.UUID, name string) (*Todo, error) {
	t, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	t.Name = name
	t.UpdatedAt = s.timestamp()
	return s.save(ctx, t)
}

// Complete leaves an already completed todo untouched, so CompletedAt never
// moves backwards.
func (s *Service) Complete(ctx context.Context, userID, id uuid.UUID) (*Todo, error) {
	t, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted {
		return t, nil
	}

	now := s.timestamp()
	t.IsCompleted = true
	t.CompletedAt = &now
	t.UpdatedAt = now
	return s.save(ctx, t)
}

func (s *Service) Revert(ctx context.Context, userID, id uuid.UUID) (*Todo, error) {
	t, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	t.IsCompleted = false
	t.CompletedAt = nil
	t.UpdatedAt = s.timestamp()
	return s.save(ctx, t)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}

	if err := s.todos.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}

// DeleteMany removes the caller's todos, optionally only those in the given
// completion state, and reports how many went.
func (s *Service) DeleteMany(ctx context.Context, userID uuid.UUID, completed *bool) (int64, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.todos.Delete(ctx, OwnedBy(userID).Delete(), Completed(completed).Delete())
}

func (s *Service) owned(ctx context.Context, userID, id uuid.UUID) (*Todo, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	t, err := s.todos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, id)
	}
	return t, nil
}

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", user.ErrNotFound, userID)
		}
		return err
	}
	return nil
}

func (s *Service) save(ctx context.Context, t *Todo) (*Todo, error) {
	saved, err := s.todos.Update(ctx, t)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, t.ID)
		}
		return nil, err
	}
	return saved, nil
}

// timestamp matches Postgres microsecond precision so values survive a round trip.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
