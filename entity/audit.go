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
	"time"

	"github.com/uptrace/bun"
)

type auditorKey struct{}

// WithAuditor records who is changing data in ctx.
func WithAuditor(ctx context.Context, auditor string) context.Context {
	return context.WithValue(ctx, auditorKey{}, auditor)
}

// AuditorFromContext returns the auditor set by WithAuditor.
func AuditorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	auditor, ok := ctx.Value(auditorKey{}).(string)
	return auditor, ok && auditor != ""
}

// now is replaced in tests.
var now = time.Now

// BaseTimeEntity maintains creation and modification times.
type BaseTimeEntity struct {
	CreatedDate      time.Time `bun:"created_date,nullzero,notnull,default:current_timestamp" json:"createdDate"`
	LastModifiedDate time.Time `bun:"last_modified_date,nullzero" json:"lastModifiedDate"`
}

var _ bun.BeforeAppendModelHook = (*BaseTimeEntity)(nil)

func (e *BaseTimeEntity) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	ts := now()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.CreatedDate.IsZero() {
			e.CreatedDate = ts
		}
		e.LastModifiedDate = ts
	case *bun.UpdateQuery:
		e.LastModifiedDate = ts
	}
	return nil
}

// BaseEntity adds the auditor of the creation and of the last change.
type BaseEntity struct {
	BaseTimeEntity
	CreatedBy      string `bun:"created_by" json:"createdBy"`
	LastModifiedBy string `bun:"last_modified_by" json:"lastModifiedBy"`
}

var _ bun.BeforeAppendModelHook = (*BaseEntity)(nil)

func (e *BaseEntity) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if err := e.BaseTimeEntity.BeforeAppendModel(ctx, query); err != nil {
		return err
	}
	auditor, ok := AuditorFromContext(ctx)
	if !ok {
		return nil
	}
	switch query.(type) {
	case *bun.InsertQuery:
		if e.CreatedBy == "" {
			e.CreatedBy = auditor
		}
		e.LastModifiedBy = auditor
	case *bun.UpdateQuery:
		e.LastModifiedBy = auditor
	}
	return nil
}
