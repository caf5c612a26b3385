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
	"strings"

	"github.com/tomoncle/datajpa/entity"
)

// Property paths understood by query by example.
const (
	PathUsername = "username"
	PathAge      = "age"
	PathTeamName = "team.name"
)

// ExampleMatcher tunes which probe properties take part in the match.
type ExampleMatcher struct {
	IgnorePaths []string
}

// Matching returns a matcher that compares every supported property.
func Matching() ExampleMatcher {
	return ExampleMatcher{}
}

// WithIgnorePaths returns a copy of m that skips the given property paths.
func (m ExampleMatcher) WithIgnorePaths(paths ...string) ExampleMatcher {
	ignore := make([]string, 0, len(m.IgnorePaths)+len(paths))
	ignore = append(ignore, m.IgnorePaths...)
	m.IgnorePaths = append(ignore, paths...)
	return m
}

func (m ExampleMatcher) ignored(path string) bool {
	for _, p := range m.IgnorePaths {
		if strings.EqualFold(p, path) {
			return true
		}
	}
	return false
}

// Example is a probe member plus the matcher that says how to compare it.
// An empty username is not compared; age always is unless ignored, since
// zero is a valid age. A probe team matches by name through a join.
type Example struct {
	Probe   *entity.Member
	Matcher ExampleMatcher
}

func ExampleOf(probe *entity.Member, matcher ...ExampleMatcher) Example {
	e := Example{Probe: probe}
	if len(matcher) > 0 {
		e.Matcher = matcher[0]
	}
	return e
}

func (r *memberRepository) FindAllByExample(ctx context.Context, example Example) ([]*entity.Member, error) {
	var members []*entity.Member
	query := r.selectMembers(&members)
	probe, matcher := example.Probe, example.Matcher
	if probe == nil {
		err := query.Scan(ctx)
		return members, err
	}

	if probe.Username != "" && !matcher.ignored(PathUsername) {
		query = query.Where("m.username = ?", probe.Username)
	}
	if !matcher.ignored(PathAge) {
		query = query.Where("m.age = ?", probe.Age)
	}
	if probe.Team != nil && probe.Team.Name != "" && !matcher.ignored(PathTeamName) {
		query = query.Relation("Team").Where("team.name = ?", probe.Team.Name)
	}
	err := query.Order("m.member_id ASC").Scan(ctx)
	return members, err
}
