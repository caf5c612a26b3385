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

// Package dto holds the read models returned to API clients.
package dto

import "github.com/tomoncle/datajpa/entity"

// MemberDto is a member flattened with the name of its team.
type MemberDto struct {
	ID       int64  `bun:"id" json:"id"`
	Username string `bun:"username" json:"username"`
	TeamName string `bun:"team_name" json:"teamName"`
}

func NewMemberDto(id int64, username, teamName string) *MemberDto {
	return &MemberDto{ID: id, Username: username, TeamName: teamName}
}

// FromMember converts m; the team name stays empty unless the team is loaded.
func FromMember(m *entity.Member) *MemberDto {
	d := &MemberDto{ID: m.ID, Username: m.Username}
	if m.Team != nil {
		d.TeamName = m.Team.Name
	}
	return d
}
