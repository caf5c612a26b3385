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

	"github.com/tomoncle/datajpa/entity"
	"github.com/uptrace/bun"
)

// MemberRepositoryCustom holds member queries written by hand in SQL.
type MemberRepositoryCustom interface {
	FindMemberCustom(ctx context.Context) ([]*entity.Member, error)
}

type memberRepositoryCustomImpl struct {
	conn bun.IDB
}

func NewMemberRepositoryCustom(db bun.IDB) MemberRepositoryCustom {
	return &memberRepositoryCustomImpl{conn: db}
}

func (r *memberRepositoryCustomImpl) FindMemberCustom(ctx context.Context) ([]*entity.Member, error) {
	members := make([]*entity.Member, 0)
	err := r.conn.NewRaw("SELECT * FROM member ORDER BY member_id").Scan(ctx, &members)
	return members, err
}
