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
	"fmt"
	"strings"

	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ResolveColumn maps a sort property onto a column of table. The property
// may be the column name or the Go field name in any case, so "id" and
// "ID" both find a field named ID.
func ResolveColumn(table *schema.Table, property string) (string, error) {
	if f, ok := table.FieldMap[property]; ok {
		return f.Name, nil
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, property) || strings.EqualFold(f.Name, property) {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no property %q on %s", types.ErrInvalidSort, property, table.TypeName)
}

// ApplySort appends ORDER BY clauses for sort to q, qualified by the model's
// table alias.
func ApplySort(q *bun.SelectQuery, table *schema.Table, sort types.Sort) error {
	for _, order := range sort {
		column, err := ResolveColumn(table, order.Property)
		if err != nil {
			return err
		}
		direction := types.ASC
		if strings.EqualFold(string(order.Direction), string(types.DESC)) {
			direction = types.DESC
		}
		q.OrderExpr("?TableAlias.? ?", bun.Ident(column), bun.Safe(direction))
	}
	return nil
}
