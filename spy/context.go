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

import "context"

type ctxKey int

const (
	connectionIDKey ctxKey = iota
	silentKey
)

// WithConnectionID tags statements executed with ctx with a connection id.
func WithConnectionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, connectionIDKey, id)
}

// ConnectionIDFromContext returns the tagged connection id or NoConnection.
func ConnectionIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return NoConnection
	}
	if id, ok := ctx.Value(connectionIDKey).(int64); ok {
		return id
	}
	return NoConnection
}

// Silent returns a context whose statements are not written to the sink.
func Silent(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey, true)
}

func IsSilent(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	silent, _ := ctx.Value(silentKey).(bool)
	return silent
}
