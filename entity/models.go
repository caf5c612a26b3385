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

import "github.com/tomoncle/datajpa/database"

// Table creation order: referenced tables first.
const (
	teamPriority   = 10
	memberPriority = 20
	itemPriority   = 30
)

// Models returns the SQL models of this package.
func Models() []database.SQLModel {
	return []database.SQLModel{
		database.NewModelAdapter((*Team)(nil), teamPriority),
		database.NewModelAdapter((*Member)(nil), memberPriority),
		database.NewModelAdapter((*Item)(nil), itemPriority),
	}
}

// Register adds the models of this package to registry.
func Register(registry database.ModelRegistry) {
	registry.Register(Models()...)
}
