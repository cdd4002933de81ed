package repository

import (
	"fmt"

	"github.com/uptrace/bun"
)

type (
	SelectCriteria func(*bun.SelectQuery) *bun.SelectQuery
	DeleteCriteria func(*bun.DeleteQuery) *bun.DeleteQuery
)

// Filter adds WHERE predicates and can be used for both selects and deletes.
type Filter func(bun.QueryBuilder) bun.QueryBuilder

func (f Filter) Select() SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.ApplyQueryBuilder(f)
	}
}

func (f Filter) Delete() DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.ApplyQueryBuilder(f)
	}
}

// Paginate rejects negative bounds as a build failure.
func Paginate(limit, offset int) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if limit < 0 || offset < 0 {
			return q.Err(fmt.Errorf("invalid page: limit=%d offset=%d", limit, offset))
		}
		return q.Limit(limit).Offset(offset)
	}
}

func OrderBy(expr string) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr(expr)
	}
}

// applyCriteria runs caller callbacks, turning a panic inside one into an error.
func applyCriteria[Q any, C ~func(Q) Q](q Q, criteria []C) (out Q, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("criteria panicked: %v", rec)
		}
	}()

	for _, c := range criteria {
		if apply := (func(Q) Q)(c); apply != nil {
			q = apply(q)
		}
	}
	return q, nil
}
