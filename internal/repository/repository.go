// Package repository is a generic CRUD layer over bun. Each entity supplies a
// Descriptor; callers shape queries with criteria callbacks instead of
// hand-written SQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrStorage    = errors.New("storage failure")
	ErrQueryBuild = errors.New("query build failure")
	ErrConflict   = errors.New("record conflicts with existing data")
)

const uniqueViolation = "23505"

type Repository[M any] interface {
	Select(ctx context.Context, criteria ...SelectCriteria) ([]*M, error)
	Count(ctx context.Context, criteria ...SelectCriteria) (int, error)
	Get(ctx context.Context, criteria ...SelectCriteria) (*M, error)
	GetByID(ctx context.Context, id uuid.UUID) (*M, error)
	Insert(ctx context.Context, record *M) (*M, error)
	Update(ctx context.Context, record *M) (*M, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, criteria ...DeleteCriteria) (int64, error)
}

// Descriptor carries the few entity specifics the generic code needs. Table
// and column names come from the model's bun tags.
type Descriptor[M any] struct {
	Name string
	// IDColumn defaults to "id".
	IDColumn string
	// Mutable lists the columns Update writes. Empty means every column.
	Mutable []string
}

type BunRepository[M any] struct {
	db   bun.IDB
	desc Descriptor[M]
}

var _ Repository[struct{}] = (*BunRepository[struct{}])(nil)

func New[M any](db bun.IDB, desc Descriptor[M]) *BunRepository[M] {
	if desc.IDColumn == "" {
		desc.IDColumn = "id"
	}
	if desc.Name == "" {
		desc.Name = "record"
	}
	return &BunRepository[M]{db: db, desc: desc}
}

// Select never returns nil on success; no match is an empty slice.
func (r *BunRepository[M]) Select(ctx context.Context, criteria ...SelectCriteria) ([]*M, error) {
	records := make([]*M, 0)
	q, err := r.buildSelect(&records, criteria)
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, r.storageError("select", err)
	}
	return records, nil
}

// Count wraps the customized select in a subquery, so any limit or offset
// passed in criteria bounds the count as well.
func (r *BunRepository[M]) Count(ctx context.Context, criteria ...SelectCriteria) (int, error) {
	var records []*M
	sub, err := r.buildSelect(&records, criteria)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.NewSelect().
		ColumnExpr("count(*)").
		TableExpr("(?) AS sub", sub).
		Scan(ctx, &count); err != nil {
		return 0, r.storageError("count", err)
	}
	return count, nil
}

func (r *BunRepository[M]) Get(ctx context.Context, criteria ...SelectCriteria) (*M, error) {
	record := new(M)
	q, err := r.buildSelect(record, criteria)
	if err != nil {
		return nil, err
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", r.desc.Name, ErrNotFound)
		}
		return nil, r.storageError("get", err)
	}
	return record, nil
}

func (r *BunRepository[M]) GetByID(ctx context.Context, id uuid.UUID) (*M, error) {
	return r.Get(ctx, r.byID(id).Select())
}

// Insert writes the record as given; identifiers are assigned by the caller.
func (r *BunRepository[M]) Insert(ctx context.Context, record *M) (*M, error) {
	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, r.storageError("insert", err)
	}
	return record, nil
}

// Update writes the descriptor's mutable columns of the row matching the
// record's primary key.
func (r *BunRepository[M]) Update(ctx context.Context, record *M) (*M, error) {
	q := r.db.NewUpdate().Model(record).WherePK()
	if len(r.desc.Mutable) > 0 {
		q = q.Column(r.desc.Mutable...)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, r.storageError("update", err)
	}
	if err := r.expectRows("update", res); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *BunRepository[M]) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*M)(nil)).
		ApplyQueryBuilder(r.byID(id)).
		Exec(ctx)
	if err != nil {
		return r.storageError("delete", err)
	}
	return r.expectRows("delete", res)
}

// Delete removes every row matched by criteria. Criteria without a WHERE
// clause are rejected with ErrQueryBuild rather than emptying the table.
func (r *BunRepository[M]) Delete(ctx context.Context, criteria ...DeleteCriteria) (int64, error) {
	q := r.db.NewDelete().Model((*M)(nil))

	q, err := applyCriteria(q, criteria)
	if err != nil {
		return 0, r.buildError("delete", err)
	}
	if _, err := q.AppendQuery(q.DB().Formatter(), nil); err != nil {
		return 0, r.buildError("delete", err)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, r.storageError("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, r.storageError("delete", err)
	}
	return affected, nil
}

func (r *BunRepository[M]) buildSelect(dest any, criteria []SelectCriteria) (*bun.SelectQuery, error) {
	q, err := applyCriteria(r.db.NewSelect().Model(dest), criteria)
	if err != nil {
		return nil, r.buildError("select", err)
	}
	if _, err := q.AppendQuery(q.DB().Formatter(), nil); err != nil {
		return nil, r.buildError("select", err)
	}
	return q, nil
}

func (r *BunRepository[M]) byID(id uuid.UUID) Filter {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.Where("? = ?", bun.Ident(r.desc.IDColumn), id)
	}
}

func (r *BunRepository[M]) expectRows(op string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return r.storageError(op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", op, r.desc.Name, ErrNotFound)
	}
	return nil
}

func (r *BunRepository[M]) buildError(op string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, r.desc.Name, ErrQueryBuild, err)
}

func (r *BunRepository[M]) storageError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w: %w", op, r.desc.Name, ErrConflict, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, r.desc.Name, ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	// sqlite reports constraint failures only through the message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
