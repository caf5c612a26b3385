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
	"strconv"
	"strings"
)

const (
	DefaultTimestampLayout = "2006-01-02 15:04:05.000"
	fieldSeparator         = " | "
)

// Formatter turns one captured statement into one log line.
type Formatter interface {
	Format(stmt CapturedStatement) string
}

// FormatterFunc adapts a plain function to Formatter.
type FormatterFunc func(stmt CapturedStatement) string

func (f FormatterFunc) Format(stmt CapturedStatement) string { return f(stmt) }

// PrettyFormatter collapses the SQL onto a single line behind a fixed
// "timestamp | category | elapsed | connection | " header.
// The zero value is ready to use.
type PrettyFormatter struct {
	timestampLayout   string
	uppercaseKeywords bool
	digest            bool
	rewrite           func(string) string
}

var _ Formatter = (*PrettyFormatter)(nil)

// FormatterOption configures a PrettyFormatter.
type FormatterOption func(*PrettyFormatter)

// WithTimestampLayout sets the time layout of the header timestamp.
func WithTimestampLayout(layout string) FormatterOption {
	return func(f *PrettyFormatter) { f.timestampLayout = layout }
}

// WithUppercaseKeywords upper-cases SQL keywords outside quoted text.
func WithUppercaseKeywords() FormatterOption {
	return func(f *PrettyFormatter) { f.uppercaseKeywords = true }
}

// WithDigest adds the normalized-statement digest to the header.
func WithDigest() FormatterOption {
	return func(f *PrettyFormatter) { f.digest = true }
}

// WithRewriter applies fn to the normalized body, e.g. to redact literals.
func WithRewriter(fn func(string) string) FormatterOption {
	return func(f *PrettyFormatter) { f.rewrite = fn }
}

// NewPrettyFormatter returns a formatter with the given options applied.
func NewPrettyFormatter(opts ...FormatterOption) *PrettyFormatter {
	f := &PrettyFormatter{timestampLayout: DefaultTimestampLayout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format never fails: if anything goes wrong the raw SQL is returned as is.
func (f *PrettyFormatter) Format(stmt CapturedStatement) (line string) {
	defer func() {
		if r := recover(); r != nil {
			line = stmt.SQL
		}
	}()
	return f.Header(stmt) + f.Body(stmt.SQL)
}

// Header renders the metadata prefix, including the trailing separator.
func (f *PrettyFormatter) Header(stmt CapturedStatement) string {
	fields := []string{
		f.timestamp(stmt),
		stmt.Category.Name(),
		elapsed(stmt.ElapsedMillis),
		connection(stmt.ConnectionID),
	}
	if f.digest {
		fields = append(fields, Digest(stmt.SQL))
	}
	return strings.Join(fields, fieldSeparator) + fieldSeparator
}

// Body normalizes the SQL text according to the formatter options.
func (f *PrettyFormatter) Body(sql string) string {
	body := CollapseWhitespace(sql)
	if f.uppercaseKeywords {
		body = UppercaseKeywords(body)
	}
	if f.rewrite != nil {
		body = f.rewrite(body)
	}
	return body
}

func (f *PrettyFormatter) timestamp(stmt CapturedStatement) string {
	if stmt.Now.IsZero() {
		return ""
	}
	layout := f.timestampLayout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return stmt.Now.Format(layout)
}

func elapsed(ms int64) string {
	if ms < 0 {
		return ""
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

func connection(id int64) string {
	if id < 0 {
		return ""
	}
	return "connection " + strconv.FormatInt(id, 10)
}

// CollapseWhitespace replaces every whitespace run with a single space and
// trims both ends.
func CollapseWhitespace(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
