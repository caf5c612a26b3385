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

package spy

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/datajpa/types"
)

// NoConnection marks a statement whose connection id is unknown.
const NoConnection int64 = -1

// Category classifies a captured database call.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryStatement
	CategoryCommit
	CategoryRollback
	CategoryBatch
)

var _ types.BaseEnum = CategoryUnknown

var categoryNames = map[Category]string{
	CategoryStatement: "statement",
	CategoryCommit:    "commit",
	CategoryRollback:  "rollback",
	CategoryBatch:     "batch",
}

var categoryDescs = map[Category]string{
	CategoryStatement: "single SQL statement",
	CategoryCommit:    "transaction commit",
	CategoryRollback:  "transaction rollback",
	CategoryBatch:     "multi-row batch write",
}

// ParseCategory resolves a category by its name, ignoring case.
func ParseCategory(name string) (Category, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for c, cn := range categoryNames {
		if cn == n {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown statement category: %q", name)
}

func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) Number() int {
	if !c.IsValid() {
		return types.IllegalValue
	}
	return int(c)
}

// Name returns the lower-case category name, or "" for unknown categories.
func (c Category) Name() string {
	if !c.IsValid() {
		return types.IllegalName
	}
	return categoryNames[c]
}

func (c Category) String() string { return c.Name() }

func (c Category) Desc() string {
	if !c.IsValid() {
		return types.IllegalDesc
	}
	return categoryDescs[c]
}

// CapturedStatement is one database call observed by the interception layer.
// Values are never mutated after construction.
type CapturedStatement struct {
	Category      Category
	ConnectionID  int64
	ElapsedMillis int64
	Now           time.Time
	SQL           string
}

// NewCapturedStatement returns a statement with every metadata field unknown.
func NewCapturedStatement(sql string) CapturedStatement {
	return CapturedStatement{
		ConnectionID:  NoConnection,
		ElapsedMillis: -1,
		SQL:           sql,
	}
}
