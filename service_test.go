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

package datajpa_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/repository"
	"github.com/tomoncle/datajpa/spy"
	"github.com/tomoncle/datajpa/types"
)

func initTestDB(t *testing.T) *[]string {
	t.Helper()
	cfg := &database.Config{ConnectionConfig: *database.DefaultConnectionConfig()}
	cfg.ConnectionConfig.DBName = "file:service_" + t.Name() + "?mode=memory&cache=shared"
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DataMigrateConfig.EnableMigrateOnStartup = true

	registry := database.NewModelRegistry()
	entity.Register(registry)
	var lines []string
	sink := spy.SinkFunc(func(e spy.Event) { lines = append(lines, e.Line) })

	_, err := database.InitDB(context.Background(), cfg,
		database.WithModelRegistry(registry),
		database.WithSQLSink(sink),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
	return &lines
}

func TestServiceOverGlobalDB(t *testing.T) {
	lines := initTestDB(t)
	ctx := context.Background()
	svc := datajpa.NewGlobalService[entity.Team]()

	teamA, teamB := entity.NewTeam("teamA"), entity.NewTeam("teamB")
	require.NoError(t, svc.Save(ctx, teamA, teamB))
	assert.NotZero(t, teamA.TeamID)

	found, err := svc.Get(ctx, teamA.TeamID)
	require.NoError(t, err)
	assert.Equal(t, "teamA", found.Name)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	listed, err := svc.List(ctx, types.NewQueryFilter("t.name = ?", "teamB"))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, teamB.TeamID, listed[0].TeamID)

	page, err := svc.Page(ctx, types.PageOf(0, 1, types.SortBy(types.DESC, "name")...))
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, "teamB", page.Content[0].Name)

	teamA.Name = "teamC"
	require.NoError(t, svc.Update(ctx, teamA))
	require.NoError(t, svc.Delete(ctx, teamB.TeamID))

	_, err = svc.Get(ctx, teamB.TeamID)
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	queried, err := svc.Query(ctx, "t.name = ?", "teamC")
	require.NoError(t, err)
	assert.Len(t, queried, 1)

	assert.NotEmpty(t, *lines, "statements reach the configured sink")
	assert.Contains(t, (*lines)[len(*lines)-1], "statement")
}

func TestServiceTransactional(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	svc := datajpa.NewServiceFromDB[entity.Member](database.GetDB())

	boom := errors.New("boom")
	err := svc.Transactional(ctx, func(ctx context.Context, tx datajpa.Service[entity.Member]) error {
		require.NoError(t, tx.Save(ctx, entity.NewMember("member1", 10, nil)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, svc.Save(ctx))
	count, err := svc.SelectBuilder().Model((*entity.Member)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
