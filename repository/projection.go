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
	"strconv"

	"github.com/uptrace/bun"
)

// UsernameOnly is an open projection: its value is computed from the row.
type UsernameOnly struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	Username string `bun:"username"`
	Age      int    `bun:"age"`
}

func (u *UsernameOnly) GetUsername() string {
	return u.Username + " " + strconv.Itoa(u.Age)
}

// UsernameOnlyDto is a closed projection selecting the username only.
type UsernameOnlyDto struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	Username string `bun:"username" json:"username"`
}

// NestedClosedProjection selects the username and the name of the team.
type NestedClosedProjection struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	Username string    `bun:"username" json:"username"`
	TeamID   *int64    `bun:"team_id" json:"-"`
	Team     *TeamInfo `bun:"rel:belongs-to,join:team_id=team_id" json:"team"`
}

func (*NestedClosedProjection) ProjectionRelations() []string { return []string{"Team"} }

type TeamInfo struct {
	bun.BaseModel `bun:"table:team,alias:t"`

	TeamID int64  `bun:"team_id,pk" json:"-"`
	Name   string `bun:"name" json:"name"`
}

// MemberProjection is the row shape of the native projection query.
type MemberProjection struct {
	ID       int64  `bun:"id" json:"id"`
	Username string `bun:"username" json:"username"`
	TeamName string `bun:"team_name" json:"teamName"`
}

// relationProjection is implemented by projections that need joins.
type relationProjection interface {
	ProjectionRelations() []string
}

// FindProjectionsByUsername loads members named username into projection
// P, a Bun model of the member table. Only the columns of P are selected.
func FindProjectionsByUsername[P any](ctx context.Context, db bun.IDB, username string) ([]*P, error) {
	rows := make([]*P, 0)
	query := db.NewSelect().Model(&rows).Where("?TableAlias.username = ?", username)
	if rp, ok := any(new(P)).(relationProjection); ok {
		for _, rel := range rp.ProjectionRelations() {
			query = query.Relation(rel)
		}
	}
	err := query.Scan(ctx)
	return rows, err
}
