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
	"fmt"

	"github.com/tomoncle/datajpa/dto"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// MemberRepository is the member repository with its query methods.
type MemberRepository interface {
	Repository[entity.Member]
	MemberRepositoryCustom

	FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*entity.Member, error)
	FindTop3(ctx context.Context) ([]*entity.Member, error)
	FindUser(ctx context.Context, username string, age int) ([]*entity.Member, error)
	FindUsernameList(ctx context.Context) ([]string, error)
	FindMemberDto(ctx context.Context) ([]*dto.MemberDto, error)
	FindByNames(ctx context.Context, names []string) ([]*entity.Member, error)

	// FindListByUsername returns an empty slice when nothing matches.
	FindListByUsername(ctx context.Context, username string) ([]*entity.Member, error)
	// FindMemberByUsername returns nil when nothing matches and
	// ErrIncorrectResultSize when more than one member matches.
	FindMemberByUsername(ctx context.Context, username string) (*entity.Member, error)
	FindOptionalByUsername(ctx context.Context, username string) (*entity.Member, bool, error)

	FindPageByAge(ctx context.Context, age int, pageRequest *types.PageRequest) (*types.Page[entity.Member], error)
	FindSliceByAge(ctx context.Context, age int, pageRequest *types.PageRequest) (*types.Slice[entity.Member], error)
	// BulkAgePlus adds one to the age of every member at least age years old
	// and returns the number of rows changed. Members already loaded keep
	// their old age.
	BulkAgePlus(ctx context.Context, age int) (int64, error)

	FindAllWithTeam(ctx context.Context) ([]*entity.Member, error)
	FindMemberFetchJoin(ctx context.Context) ([]*entity.Member, error)
	FindEntityGraphByUsername(ctx context.Context, username string) ([]*entity.Member, error)
	// FindReadOnlyByUsername returns a member that Save and Update ignore.
	FindReadOnlyByUsername(ctx context.Context, username string) (*entity.Member, error)
	FindLockByUsername(ctx context.Context, username string) ([]*entity.Member, error)

	FindAllByExample(ctx context.Context, example Example) ([]*entity.Member, error)
	FindByNativeProjection(ctx context.Context, pageRequest *types.PageRequest) (*types.Page[MemberProjection], error)
}

type memberRepository struct {
	*baseRepositoryImpl[entity.Member]
	*memberRepositoryCustomImpl
}

var _ MemberRepository = (*memberRepository)(nil)

func NewMemberRepository(db bun.IDB, opts ...Option) MemberRepository {
	base := newBaseRepository[entity.Member](db, newOptions(opts))
	return &memberRepository{
		baseRepositoryImpl:         base,
		memberRepositoryCustomImpl: &memberRepositoryCustomImpl{conn: db},
	}
}

func (r *memberRepository) selectMembers(dest *[]*entity.Member) *bun.SelectQuery {
	*dest = make([]*entity.Member, 0)
	return r.db.NewSelect().Model(dest)
}

func (r *memberRepository) FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Where("m.username = ?", username).
		Where("m.age > ?", age).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindTop3(ctx context.Context) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Order("m.member_id ASC").
		Limit(3).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindUser(ctx context.Context, username string, age int) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Where("m.username = ? AND m.age = ?", username, age).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindUsernameList(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	err := r.db.NewSelect().
		Model((*entity.Member)(nil)).
		Column("username").
		Order("m.member_id ASC").
		Scan(ctx, &names)
	return names, err
}

func (r *memberRepository) FindMemberDto(ctx context.Context) ([]*dto.MemberDto, error) {
	dtos := make([]*dto.MemberDto, 0)
	err := r.db.NewSelect().
		TableExpr("member AS m").
		Join("JOIN team AS t ON t.team_id = m.team_id").
		ColumnExpr("m.member_id AS id").
		ColumnExpr("m.username").
		ColumnExpr("t.name AS team_name").
		Order("m.member_id ASC").
		Scan(ctx, &dtos)
	return dtos, err
}

func (r *memberRepository) FindByNames(ctx context.Context, names []string) ([]*entity.Member, error) {
	var members []*entity.Member
	if len(names) == 0 {
		return make([]*entity.Member, 0), nil
	}
	err := r.selectMembers(&members).
		Where("m.username IN (?)", bun.In(names)).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindListByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Where("m.username = ?", username).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindMemberByUsername(ctx context.Context, username string) (*entity.Member, error) {
	return r.findUnique(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("m.username = ?", username)
	})
}

func (r *memberRepository) FindOptionalByUsername(ctx context.Context, username string) (*entity.Member, bool, error) {
	m, err := r.FindMemberByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return m, m != nil, nil
}

// findUnique fetches at most two rows to tell "one" from "more than one".
func (r *memberRepository) findUnique(ctx context.Context, where func(*bun.SelectQuery) *bun.SelectQuery) (*entity.Member, error) {
	var members []*entity.Member
	if err := where(r.selectMembers(&members)).Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		return members[0], nil
	default:
		return nil, fmt.Errorf("%w: %d or more members", ErrIncorrectResultSize, len(members))
	}
}

func (r *memberRepository) FindPageByAge(ctx context.Context, age int, pageRequest *types.PageRequest) (*types.Page[entity.Member], error) {
	total, err := r.db.NewSelect().
		Model((*entity.Member)(nil)).
		Where("m.age = ?", age).
		Count(ctx)
	if err != nil {
		return nil, err
	}

	var members []*entity.Member
	query := r.selectMembers(&members).Where("m.age = ?", age)
	if err := ApplySort(query, r.table(), pageRequest.GetSort()); err != nil {
		return nil, err
	}
	if total > pageRequest.GetOffset() {
		err = query.
			Offset(pageRequest.GetOffset()).
			Limit(pageRequest.GetPageSize()).
			Scan(ctx)
		if err != nil {
			return nil, err
		}
	}
	return types.NewPage(members, pageRequest, total), nil
}

func (r *memberRepository) FindSliceByAge(ctx context.Context, age int, pageRequest *types.PageRequest) (*types.Slice[entity.Member], error) {
	var members []*entity.Member
	query := r.selectMembers(&members).Where("m.age = ?", age)
	if err := ApplySort(query, r.table(), pageRequest.GetSort()); err != nil {
		return nil, err
	}
	err := query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize() + 1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewSlice(members, pageRequest), nil
}

func (r *memberRepository) BulkAgePlus(ctx context.Context, age int) (int64, error) {
	res, err := r.db.NewUpdate().
		Table("member").
		Set("age = age + 1").
		Where("age >= ?", age).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *memberRepository) FindAllWithTeam(ctx context.Context) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Relation("Team").
		Order("m.member_id ASC").
		Scan(ctx)
	return members, err
}

// FindMemberFetchJoin loads every member with its team in one query; members
// without a team come back with a nil Team.
func (r *memberRepository) FindMemberFetchJoin(ctx context.Context) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Relation("Team").
		Order("m.member_id ASC").
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindEntityGraphByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	var members []*entity.Member
	err := r.selectMembers(&members).
		Relation("Team").
		Where("m.username = ?", username).
		Scan(ctx)
	return members, err
}

func (r *memberRepository) FindReadOnlyByUsername(ctx context.Context, username string) (*entity.Member, error) {
	m, err := r.FindMemberByUsername(ctx, username)
	if err != nil || m == nil {
		return m, err
	}
	m.MarkReadOnly()
	return m, nil
}

// FindLockByUsername selects FOR UPDATE; SQLite locks the whole database on
// write and has no row locks, so there the plain select is used.
func (r *memberRepository) FindLockByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	var members []*entity.Member
	query := r.selectMembers(&members).Where("m.username = ?", username)
	if r.db.Dialect().Name() != dialect.SQLite {
		query = query.For("UPDATE")
	}
	err := query.Scan(ctx)
	return members, err
}

func (r *memberRepository) FindByNativeProjection(ctx context.Context, pageRequest *types.PageRequest) (*types.Page[MemberProjection], error) {
	var total int
	if err := r.db.NewRaw("SELECT count(*) FROM member").Scan(ctx, &total); err != nil {
		return nil, err
	}
	content := make([]*MemberProjection, 0)
	if total > pageRequest.GetOffset() {
		err := r.db.NewRaw(
			"SELECT m.member_id AS id, m.username, t.name AS team_name "+
				"FROM member AS m LEFT JOIN team AS t ON t.team_id = m.team_id "+
				"ORDER BY m.member_id LIMIT ? OFFSET ?",
			pageRequest.GetPageSize(), pageRequest.GetOffset(),
		).Scan(ctx, &content)
		if err != nil {
			return nil, err
		}
	}
	return types.NewPage(content, pageRequest, total), nil
}
