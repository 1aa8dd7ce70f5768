/*
 * Copyright 2026 The CodeSync Authors. All rights reserved.
 *
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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codesync-team/codesync/server"
	"github.com/codesync-team/codesync/server/backend/pipeline"
	"github.com/codesync-team/codesync/server/edits"
)

var (
	statusAddr    string
	statusOutput  string
	statusTimeout time.Duration
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the rooms and the job pipeline of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
			defer cancel()

			status, err := fetchStatus(ctx, statusAddr)
			if err != nil {
				return err
			}

			return printStatus(cmd, statusOutput, status)
		},
	}
}

func fetchStatus(ctx context.Context, addr string) (*edits.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/status", addr), nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request status: %s", resp.Status)
	}

	status := &edits.Status{}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}

	return status, nil
}

func printStatus(cmd *cobra.Command, output string, status *edits.Status) error {
	switch output {
	case "":
		cmd.Printf("HOSTNAME: %s\n", status.Hostname)
		cmd.Printf("HEALTH: %s\n", status.Health.Status)
		for name, check := range status.Health.Checks {
			if check.Error != "" {
				cmd.Printf("  %s: %s (%s)\n", name, check.Status, check.Error)
			}
		}
		cmd.Printf(
			"ROOMS: %d, OPERATIONS: %d, AVERAGE LOG SIZE: %.1f\n",
			status.Rooms.Rooms,
			status.Rooms.Operations,
			status.Rooms.AverageLogSize,
		)
		if len(status.RoomIDs) > 0 {
			cmd.Printf("ROOM IDS: %s\n", strings.Join(status.RoomIDs, ", "))
		}
		cmd.Println()

		jobTypes := make([]pipeline.JobType, 0, len(status.Jobs))
		for jobType := range status.Jobs {
			jobTypes = append(jobTypes, jobType)
		}
		sort.Slice(jobTypes, func(i, j int) bool {
			return jobTypes[i] < jobTypes[j]
		})

		tw := table.NewWriter()
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateFooter = false
		tw.Style().Options.SeparateHeader = false
		tw.Style().Options.SeparateRows = false
		tw.AppendHeader(table.Row{
			"JOB TYPE",
			"WAITING",
			"ACTIVE",
			"COMPLETED",
			"FAILED",
		})
		for _, jobType := range jobTypes {
			counts := status.Jobs[jobType]
			tw.AppendRow(table.Row{
				jobType,
				counts.Waiting,
				counts.Active,
				counts.Completed,
				counts.Failed,
			})
		}
		cmd.Printf("%s\n", tw.Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	case "yaml":
		yamlOutput, err := yaml.Marshal(status)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		cmd.Println(string(yamlOutput))
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	return nil
}

func init() {
	cmd := newStatusCmd()
	cmd.Flags().StringVar(
		&statusAddr,
		"addr",
		fmt.Sprintf("localhost:%d", server.DefaultTransportPort),
		"Address of the server",
	)
	cmd.Flags().StringVarP(
		&statusOutput,
		"output",
		"o",
		"",
		"One of 'yaml' or 'json'.",
	)
	cmd.Flags().DurationVar(
		&statusTimeout,
		"timeout",
		5*time.Second,
		"Timeout of the status request",
	)
	rootCmd.AddCommand(cmd)
}
