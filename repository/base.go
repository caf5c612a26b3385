/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// AuditorAware names whoever is changing data; ok=false leaves the audit
// columns untouched.
type AuditorAware func(ctx context.Context) (auditor string, ok bool)

// RandomAuditor names every write with a fresh UUID.
func RandomAuditor(context.Context) (string, bool) {
	return uuid.NewString(), true
}

type options struct {
	auditor AuditorAware
}

type Option func(*options)

// WithAuditorAware replaces RandomAuditor; nil disables auditor injection.
func WithAuditorAware(fn AuditorAware) Option {
	return func(o *options) { o.auditor = fn }
}

func newOptions(opts []Option) options {
	o := options{auditor: RandomAuditor}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type baseRepositoryImpl[T any] struct {
	db   bun.IDB
	opts options
}

// NewRepository returns a generic repository backed by db, which may be a
// *bun.DB or a transaction.
func NewRepository[T any](db bun.IDB, opts ...Option) Repository[T] {
	return newBaseRepository[T](db, newOptions(opts))
}

func newBaseRepository[T any](db bun.IDB, opts options) *baseRepositoryImpl[T] {
	return &baseRepositoryImpl[T]{db: db, opts: opts}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) table() *schema.Table {
	return r.db.Dialect().Tables().Get(reflect.TypeFor[T]())
}

// pkColumn is the first primary key column of T.
func (r *baseRepositoryImpl[T]) pkColumn() (string, error) {
	pks := r.table().PKs
	if len(pks) == 0 {
		return "", fmt.Errorf("%T has no primary key", (*T)(nil))
	}
	return pks[0].Name, nil
}

// withAuditor puts the auditor into ctx unless the caller already did.
func (r *baseRepositoryImpl[T]) withAuditor(ctx context.Context) context.Context {
	if r.opts.auditor == nil {
		return ctx
	}
	if _, ok := entity.AuditorFromContext(ctx); ok {
		return ctx
	}
	if auditor, ok := r.opts.auditor(ctx); ok {
		return entity.WithAuditor(ctx, auditor)
	}
	return ctx
}

// isNew prefers Persistable and falls back to a zero primary key.
func (r *baseRepositoryImpl[T]) isNew(e *T) bool {
	if p, ok := any(e).(Persistable); ok {
		return p.IsNew()
	}
	v := reflect.ValueOf(e).Elem()
	for _, pk := range r.table().PKs {
		if !pk.HasZeroValue(v) {
			return false
		}
	}
	return true
}

func isReadOnly(e any) bool {
	ro, ok := e.(ReadOnly)
	return ok && ro.IsReadOnly()
}

func (r *baseRepositoryImpl[T]) ValsToSlice(entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id any) (*T, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	e := new(T)
	err = r.db.NewSelect().Model(e).Where("?TableAlias.? = ?", bun.Ident(pk), id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %T id=%v", ErrEntityNotFound, e, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *baseRepositoryImpl[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return false, err
	}
	return r.db.NewSelect().Model((*T)(nil)).Where("?TableAlias.? = ?", bun.Ident(pk), id).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.db.NewSelect().Model(&entities).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) FindAllSorted(ctx context.Context, sort types.Sort) ([]*T, error) {
	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if err := ApplySort(query, r.table(), sort); err != nil {
		return nil, err
	}
	err := query.Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.db.NewSelect().Model(&entities).Where(query, args...).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*T)(nil)).Count(ctx)
}

// FindAllPage runs a count query and, when anything matched, the page query.
func (r *baseRepositoryImpl[T]) FindAllPage(ctx context.Context, pageRequest *types.PageRequest) (*types.Page[T], error) {
	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if pageRequest.GetFilter() != nil {
		query = query.Where(pageRequest.GetFilter().Schema, pageRequest.GetFilter().Args...)
	}
	if err := ApplySort(query, r.table(), pageRequest.GetSort()); err != nil {
		return nil, err
	}
	total, err := query.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.NewPage(entities, pageRequest, 0), nil
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewPage(entities, pageRequest, total), nil
}

func (r *baseRepositoryImpl[T]) Save(ctx context.Context, e *T) error {
	return r.save(ctx, r.db, e)
}

func (r *baseRepositoryImpl[T]) SaveAll(ctx context.Context, entities ...*T) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, e := range entities {
			if err := r.save(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *baseRepositoryImpl[T]) save(ctx context.Context, db bun.IDB, e *T) error {
	if r.isNew(e) {
		_, err := db.NewInsert().Model(e).Exec(r.withAuditor(ctx))
		return err
	}
	return r.update(ctx, db, e)
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, db bun.IDB, e *T) error {
	if isReadOnly(e) {
		return nil
	}
	_, err := db.NewUpdate().Model(e).WherePK().Exec(r.withAuditor(ctx))
	return err
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	return r.create(ctx, r.db, entity...)
}

func (r *baseRepositoryImpl[T]) create(ctx context.Context, db bun.IDB, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := r.ValsToSlice(entity...)
	_, err := db.NewInsert().Model(&entities).Exec(r.withAuditor(ctx))
	return err
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, r.db, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, e *T) error {
	return r.update(ctx, r.db, e)
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, e *T) error {
	_, err := r.db.NewDelete().Model(e).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any) error {
	return r.deleteByID(ctx, r.db, id)
}

func (r *baseRepositoryImpl[T]) deleteByID(ctx context.Context, db bun.IDB, id any) error {
	pk, err := r.pkColumn()
	if err != nil {
		return err
	}
	_, err = db.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(pk), id).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().Model((*T)(nil)).Where("1 = 1").Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx *bun.Tx, entity ...*T) error {
	return r.create(ctx, tx, entity...)
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx *bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, tx, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx *bun.Tx, e *T) error {
	return r.update(ctx, tx, e)
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx *bun.Tx, id any) error {
	return r.deleteByID(ctx, tx, id)
}

func (r *baseRepositoryImpl[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, newBaseRepository[T](tx, r.opts))
	})
}

func (r *baseRepositoryImpl[T]) multipleUpsert(ctx context.Context, db bun.IDB, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	ctx = r.withAuditor(ctx)
	entities := r.ValsToSlice(entity...)
	features := r.db.Dialect().Features()

	switch {
	case features.Has(feature.InsertOnConflict):
		return r.upsertWithPostgresqlOrSQLite(ctx, db.NewInsert(), fields, duplicateKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return r.upsertWithMySQL(ctx, db.NewInsert(), fields, entities)
	default:
		return r.upsertFallback(ctx, db, entities)
	}
}

func (r *baseRepositoryImpl[T]) upsertWithMySQL(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, r.quote("? = VALUES(?)", bun.Ident(field), bun.Ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertWithPostgresqlOrSQLite(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		for _, pk := range r.table().PKs {
			duplicateKeys = append(duplicateKeys, pk.Name)
		}
	}
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, r.quote("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("CONFLICT (" + strings.Join(duplicateKeys, ",") + ") DO UPDATE").
		Set(strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, entities []*T) error {
	for _, e := range entities {
		_, err := db.NewInsert().Model(e).Exec(ctx)
		if err != nil {
			_, updateErr := db.NewUpdate().Model(e).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}

// quote renders a fragment with the dialect's identifier quoting.
func (r *baseRepositoryImpl[T]) quote(query string, args ...interface{}) string {
	return string(schema.NewFormatter(r.db.Dialect()).AppendQuery(nil, query, args...))
}
