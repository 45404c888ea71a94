package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/padraicbc/f1mirror/apperr"
)

// Repository is the narrow persistence port the reconcilers depend on.
type Repository[T any] interface {
	// Upsert inserts records, replacing any row that has the same primary key.
	Upsert(ctx context.Context, records []*T) error
	// FindOne returns the record with the given key, or nil when absent.
	FindOne(ctx context.Context, key any, relations ...string) (*T, error)
	// Find returns every record matching q.
	Find(ctx context.Context, q Query) ([]*T, error)
	// UpdateFields writes only the named columns of one record.
	UpdateFields(ctx context.Context, key any, fields Fields) error
}

// Fields is a partial column patch keyed by column name.
type Fields map[string]any

// Cond is an equality filter. A nil Value matches NULL.
type Cond struct {
	Column string
	Value  any
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a Find call.
type Query struct {
	Where     []Cond
	OrderBy   []Order
	Relations []string
}

// Eq filters on column = value.
func Eq(column string, value any) Cond { return Cond{Column: column, Value: value} }

// IsNull filters on column IS NULL.
func IsNull(column string) Cond { return Cond{Column: column} }

// Asc sorts ascending on column.
func Asc(column string) Order { return Order{Column: column} }

// Table implements Repository over one bun model.
type Table[T any] struct {
	db bun.IDB
	pk string
}

var _ Repository[struct{}] = (*Table[struct{}])(nil)

// NewTable binds model T, whose primary key column is pk, to db.
func NewTable[T any](db bun.IDB, pk string) *Table[T] {
	return &Table[T]{db: db, pk: pk}
}

func (t *Table[T]) Upsert(ctx context.Context, records []*T) error {
	if len(records) == 0 {
		return nil
	}

	q := t.db.NewInsert().
		Model(&records).
		On("CONFLICT (?) DO UPDATE", bun.Ident(t.pk))

	// created_at keeps its first value; everything else takes the new row.
	table := t.db.Dialect().Tables().Get(reflect.TypeFor[T]())
	for _, f := range table.DataFields {
		if f.Name == "created_at" {
			continue
		}
		q = q.Set("? = EXCLUDED.?", bun.Ident(f.Name), bun.Ident(f.Name))
	}

	if _, err := q.Exec(ctx); err != nil {
		return apperr.Persistence(fmt.Sprintf("upsert %s", table.Name), err)
	}
	return nil
}

func (t *Table[T]) FindOne(ctx context.Context, key any, relations ...string) (*T, error) {
	row := new(T)
	q := t.db.NewSelect().
		Model(row).
		Where("?TableAlias.? = ?", bun.Ident(t.pk), key)
	for _, rel := range relations {
		q = q.Relation(rel)
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Persistence(fmt.Sprintf("find %T %v", row, key), err)
	}
	return row, nil
}

func (t *Table[T]) Find(ctx context.Context, query Query) ([]*T, error) {
	var rows []*T
	q := t.db.NewSelect().Model(&rows)

	for _, rel := range query.Relations {
		q = q.Relation(rel)
	}
	for _, c := range query.Where {
		if c.Value == nil {
			q = q.Where("?TableAlias.? IS NULL", bun.Ident(c.Column))
			continue
		}
		q = q.Where("?TableAlias.? = ?", bun.Ident(c.Column), c.Value)
	}
	for _, o := range query.OrderBy {
		if o.Desc {
			q = q.OrderExpr("?TableAlias.? DESC", bun.Ident(o.Column))
		} else {
			q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(o.Column))
		}
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Persistence(fmt.Sprintf("find %T", rows), err)
	}
	return rows, nil
}

func (t *Table[T]) UpdateFields(ctx context.Context, key any, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	columns := make([]string, 0, len(fields))
	for col := range fields {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	q := t.db.NewUpdate().
		Model((*T)(nil)).
		Where("? = ?", bun.Ident(t.pk), key)
	for _, col := range columns {
		q = q.Set("? = ?", bun.Ident(col), fields[col])
	}
	q = q.Set("updated_at = ?", time.Now().UTC())

	if _, err := q.Exec(ctx); err != nil {
		return apperr.Persistence(fmt.Sprintf("update %T %v", (*T)(nil), key), err)
	}
	return nil
}
