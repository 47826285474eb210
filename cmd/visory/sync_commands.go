/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"visory/internal/backend"
	"visory/internal/config"
	"visory/internal/domain"
	"visory/internal/editor"
	applog "visory/internal/log"
	"visory/internal/storage"

	"github.com/spf13/cobra"
)

func (c *commandContext) backendClient() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return nil, errors.New("no backend configured; set backend.base_url or " + config.EnvBackendURL)
	}
	return backend.NewClient(cfg.Backend.BaseURL, c.token, backend.Options{
		Timeout:     cfg.Backend.Timeout(),
		TLSInsecure: cfg.Backend.TLSInsecure,
	}), nil
}

// remoteProjectID prefers the flag and falls back to the id recorded in the manifest.
func remoteProjectID(flag int64, ph *storage.ProjectHandle) (int64, error) {
	if flag > 0 {
		return flag, nil
	}
	if ph.Project.ID > 0 {
		return ph.Project.ID, nil
	}
	return 0, errors.New("remote project id unknown; pass --project-id")
}

func newPushCommand(ctx *commandContext) *cobra.Command {
	var (
		projectID int64
		previews  bool
	)
	cmd := &cobra.Command{
		Use:   "push <project-dir>",
		Short: "Upload the pages of a project to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			pid, err := remoteProjectID(projectID, ph)
			if err != nil {
				return err
			}
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			l := applog.WithOperation(applog.WithComponent(applog.ComponentCLI), "push").With(slog.Int64("project_id", pid))

			s := editor.NewSession(ph.Project, nil)
			coord := editor.NewSaveCoordinator(client)
			var created []domain.ComicPage
			for i, pg := range s.Pages() {
				if pg.ID != 0 {
					continue
				}
				remote, err := client.CreatePage(cmd.Context(), pid, pg)
				if err != nil {
					return fmt.Errorf("create page %d: %w", pg.PageNumber, err)
				}
				if err := s.SetPageID(i, remote.ID); err != nil {
					return err
				}
				pg.ID = remote.ID
				created = append(created, pg)
			}
			coord.Baseline(created)

			pages := s.Pages()
			_, saveErr := coord.SaveAll(cmd.Context(), pages)

			ids := make([]int64, 0, len(pages))
			for _, pg := range pages {
				ids = append(ids, pg.ID)
			}
			if err := client.ReorderPages(cmd.Context(), pid, ids); err != nil {
				saveErr = errors.Join(saveErr, fmt.Errorf("reorder: %w", err))
			}
			if previews {
				for _, pg := range pages {
					if _, err := client.GeneratePreview(cmd.Context(), pg.ID); err != nil {
						l.Warn("preview failed", applog.PageID(pg.ID), slog.Any("err", err))
					}
				}
			}

			// Record remote ids locally even when some saves failed.
			ph.Project = s.Project()
			ph.Project.ID = pid
			if err := storage.Save(ph); err != nil {
				return errors.Join(saveErr, err)
			}
			l.Info("push finished", slog.Int("pages", len(pages)), slog.Int("created", len(created)))
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d pages (%d new) to project %d\n", len(pages), len(created), pid)
			return saveErr
		},
	}
	cmd.Flags().Int64Var(&projectID, "project-id", 0, "Remote project id (default: id stored in the project)")
	cmd.Flags().BoolVar(&previews, "previews", false, "Ask the backend to regenerate page previews")
	return cmd
}

func newPullCommand(ctx *commandContext) *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "pull <project-dir>",
		Short: "Replace the local pages with the backend copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			pid, err := remoteProjectID(projectID, ph)
			if err != nil {
				return err
			}
			client, err := ctx.backendClient()
			if err != nil {
				return err
			}
			pages, err := client.ListPages(cmd.Context(), pid)
			if err != nil {
				return err
			}
			ph.Project.ID = pid
			ph.Project.Pages = pages
			if err := storage.Save(ph); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d pages from project %d\n", len(pages), pid)
			return nil
		},
	}
	cmd.Flags().Int64Var(&projectID, "project-id", 0, "Remote project id (default: id stored in the project)")
	return cmd
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var baseURL, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the backend URL and token (token goes to the OS keychain)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.Backend.BaseURL = baseURL
			}
			if strings.TrimSpace(token) == "" {
				return errors.New("--token is required")
			}
			if err := config.Save(cfg, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved backend settings for", cfg.Backend.BaseURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Backend base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored backend token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Backend token removed")
			return nil
		},
	}
}
