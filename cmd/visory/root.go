/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"os"
	"strings"
	"time"

	"visory/internal/config"
	applog "visory/internal/log"
	"visory/internal/telemetry"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string

	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "visory",
		Short:         "Comic page layout, rendering and export",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if p := strings.TrimSpace(configFlag); p != "" {
				if err := os.Setenv(config.EnvConfigPath, p); err != nil {
					return err
				}
			}
			if shouldSkipConfig(cmd) {
				applog.Init(applog.FromEnv())
				return nil
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := applog.FromEnv()
			opts.Level = cfg.Logging.Level
			opts.AddSource = cfg.Logging.Source
			opts.File = cfg.Logging.File
			if _, set := os.LookupEnv(config.EnvLogFormat); set || cfg.Logging.Format == "json" {
				opts.Format = cfg.Logging.Format
			}
			if lvl := strings.TrimSpace(logLevelFlag); lvl != "" {
				opts.Level = lvl
			}
			applog.Init(opts)

			tc := telemetry.FromEnv()
			tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
			telemetry.NewDefault(tc)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			telemetry.Flush(flushCtx)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newPagesCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newLayoutCommand(ctx))
	rootCmd.AddCommand(newPageCommand(ctx))
	rootCmd.AddCommand(newLetterCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newPushCommand(ctx))
	rootCmd.AddCommand(newPullCommand(ctx))
	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
