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
	"github.com/spf13/cobra"
	"github.com/tomoncle/datajpa/config"
	"github.com/tomoncle/datajpa/utils"
)

//nolint:gochecknoglobals
var (
	version   = "undefined"
	buildTime = "undefined"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the datajpa command tree; serve is the default.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	c := &cobra.Command{
		Use:   "datajpa",
		Short: "datajpa is a repository study app with a pretty SQL log",
		Long: `A member/team repository study on Bun that logs every statement
as one "timestamp | category | elapsed | connection | sql" line.`,
		SilenceUsage: true,
	}
	c.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults only when empty)")

	serve := newServeCommand(opts)
	c.RunE = serve.RunE
	c.AddCommand(serve, newFormatCommand(), newVersionCommand())
	return c
}

// loadConfig reads the configuration and applies its log settings.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	utils.ConfigureConsoleLogFormat(cfg.Log.Format)
	utils.SetAllLoggersLevel(cfg.Log.Level)
	return cfg, nil
}
