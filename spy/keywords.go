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
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
)

var sqlKeywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		SELECT FROM WHERE AND OR NOT IN IS NULL LIKE BETWEEN EXISTS
		INSERT INTO VALUES UPDATE SET DELETE RETURNING
		JOIN LEFT RIGHT INNER OUTER FULL CROSS ON USING AS
		ORDER BY GROUP HAVING LIMIT OFFSET UNION ALL DISTINCT
		CASE WHEN THEN ELSE END ASC DESC TRUE FALSE
		CREATE TABLE ALTER DROP INDEX PRIMARY KEY FOREIGN REFERENCES
		CONSTRAINT DEFAULT UNIQUE CHECK CASCADE IF
		FOR SHARE NOWAIT SKIP LOCKED WITH RECURSIVE
		CONFLICT DO NOTHING DUPLICATE
		BEGIN COMMIT ROLLBACK SAVEPOINT RELEASE TO`) {
		sqlKeywords[kw] = struct{}{}
	}
}

// UppercaseKeywords upper-cases SQL keywords, leaving quoted literals and
// quoted identifiers untouched.
func UppercaseKeywords(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(sql, i)
			b.WriteString(sql[i:j])
			i = j
		case isWordByte(c) && !isDigit(c):
			j := i + 1
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			word := sql[i:j]
			if upper := strings.ToUpper(word); isKeyword(upper) {
				b.WriteString(upper)
			} else {
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isKeyword(upper string) bool {
	_, ok := sqlKeywords[upper]
	return ok
}

// skipQuoted returns the index just past the quoted section starting at i.
// Doubled quotes and backslash escapes inside single quotes do not close it.
func skipQuoted(s string, i int) int {
	q := s[i]
	j := i + 1
	for j < len(s) {
		switch {
		case s[j] == '\\' && q == '\'':
			j += 2
		case s[j] == q:
			if j+1 < len(s) && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		default:
			j++
		}
	}
	return len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || isDigit(c) ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Digest returns a short fingerprint of the statement with literals removed,
// so that statements differing only in their parameters share a digest.
func Digest(sql string) string {
	if strings.TrimSpace(sql) == "" {
		return ""
	}
	d := parser.DigestNormalized(parser.Normalize(sql)).String()
	if len(d) > 16 {
		d = d[:16]
	}
	return d
}
