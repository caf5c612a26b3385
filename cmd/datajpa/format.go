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

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomoncle/datajpa/spy"
)

type formatOptions struct {
	category        string
	connection      int64
	elapsed         int64
	at              string
	timestampLayout string
	uppercase       bool
	digest          bool
}

func newFormatCommand() *cobra.Command {
	opts := &formatOptions{}
	c := &cobra.Command{
		Use:   "format [sql...]",
		Short: "Format SQL from the arguments or stdin as one log line",
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("can't read stdin: %w", err)
				}
				sql = string(data)
			}
			stmt, err := opts.statement(sql)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), opts.formatter().Format(stmt))
			return err
		},
	}
	f := c.Flags()
	f.StringVar(&opts.category, "category", spy.CategoryStatement.Name(), "statement, commit, rollback or batch")
	f.Int64Var(&opts.connection, "connection", spy.NoConnection, "connection id, negative when unknown")
	f.Int64Var(&opts.elapsed, "elapsed", -1, "elapsed milliseconds, negative when unknown")
	f.StringVar(&opts.at, "time", "", "statement time in RFC 3339 (now when empty, \"none\" to omit)")
	f.StringVar(&opts.timestampLayout, "timestamp-layout", spy.DefaultTimestampLayout, "Go time layout of the timestamp")
	f.BoolVar(&opts.uppercase, "uppercase", false, "upper-case SQL keywords")
	f.BoolVar(&opts.digest, "digest", false, "append the statement digest to the header")
	return c
}

func (o *formatOptions) statement(sql string) (spy.CapturedStatement, error) {
	category, err := spy.ParseCategory(o.category)
	if err != nil {
		return spy.CapturedStatement{}, err
	}
	stmt := spy.NewCapturedStatement(sql)
	stmt.Category = category
	stmt.ConnectionID = o.connection
	stmt.ElapsedMillis = o.elapsed

	switch o.at {
	case "":
		stmt.Now = time.Now()
	case "none":
	default:
		stmt.Now, err = time.Parse(time.RFC3339, o.at)
		if err != nil {
			return spy.CapturedStatement{}, fmt.Errorf("invalid --time: %w", err)
		}
	}
	return stmt, nil
}

func (o *formatOptions) formatter() spy.Formatter {
	opts := []spy.FormatterOption{spy.WithTimestampLayout(o.timestampLayout)}
	if o.uppercase {
		opts = append(opts, spy.WithUppercaseKeywords())
	}
	if o.digest {
		opts = append(opts, spy.WithDigest())
	}
	return spy.NewPrettyFormatter(opts...)
}
