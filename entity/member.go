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

package entity

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type Team struct {
	bun.BaseModel `bun:"table:team,alias:t"`

	TeamID  int64     `bun:"team_id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name" json:"name"`
	Members []*Member `bun:"rel:has-many,join:team_id=team_id" json:"-"`
	BaseTimeEntity
}

func NewTeam(name string) *Team {
	return &Team{Name: name}
}

func (t *Team) String() string {
	return fmt.Sprintf("Team(id=%d, name=%s)", t.TeamID, t.Name)
}

type Member struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	ID       int64  `bun:"member_id,pk,autoincrement" json:"id"`
	Username string `bun:"username" json:"username"`
	Age      int    `bun:"age,notnull" json:"age"`
	TeamID   *int64 `bun:"team_id" json:"-"`
	Team     *Team  `bun:"rel:belongs-to,join:team_id=team_id" json:"-"`
	BaseEntity

	readOnly bool
}

// NewMember returns a member, joined to team unless team is nil.
func NewMember(username string, age int, team *Team) *Member {
	m := &Member{Username: username, Age: age}
	if team != nil {
		m.ChangeTeam(team)
	}
	return m
}

// ChangeTeam moves the member to team on both sides of the relation.
// A nil team detaches the member and clears its team key.
func (m *Member) ChangeTeam(team *Team) {
	if m.Team == team && team != nil {
		return
	}
	if m.Team != nil {
		for i, member := range m.Team.Members {
			if member == m {
				m.Team.Members = append(m.Team.Members[:i], m.Team.Members[i+1:]...)
				break
			}
		}
	}
	m.Team = team
	if team == nil {
		m.TeamID = nil
		return
	}
	m.syncTeamID()
	team.Members = append(team.Members, m)
}

// syncTeamID copies the key of a team that was stored after ChangeTeam.
func (m *Member) syncTeamID() {
	if m.Team != nil && m.Team.TeamID != 0 {
		id := m.Team.TeamID
		m.TeamID = &id
	}
}

var _ bun.BeforeAppendModelHook = (*Member)(nil)

func (m *Member) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	m.syncTeamID()
	return m.BaseEntity.BeforeAppendModel(ctx, query)
}

// MarkReadOnly excludes the member from later updates through a repository.
func (m *Member) MarkReadOnly() { m.readOnly = true }

func (m *Member) IsReadOnly() bool { return m.readOnly }

func (m *Member) String() string {
	return fmt.Sprintf("Member(id=%d, username=%s, age=%d)", m.ID, m.Username, m.Age)
}
