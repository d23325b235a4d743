// This file is part of veeam-jobctl
//
// Copyright (C) 2026  BizFly Cloud
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/bizflycloud/bizflyctl/formatter"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bizflycloud/veeam-jobctl/pkg/config"
	"github.com/bizflycloud/veeam-jobctl/pkg/jobpatch"
	"github.com/bizflycloud/veeam-jobctl/pkg/updater"
)

var (
	updateFile        string
	updateDryRun      bool
	updateFailOnError bool
	updateHeaders     = []string{"Name", "ID", "Result", "Payload"}
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply retention and synthetic full settings from a YAML file.",
	Long: heredoc.Doc(`
		Apply retention policy and synthetic full settings to existing jobs.

		Jobs are matched by name. A job that cannot be found or updated is
		logged and skipped; the remaining entries are still applied.

		File format:

		  jobs:
		    - name: SQL daily
		      retention_policy:
		        type: days            # days | restore_points
		        value: 14
		      synthetic_full:
		        enabled: true
		        days_of_week: [saturday]
	`),
	Example: heredoc.Doc(`
		$ veeam-jobctl update --file job_updates.yaml --dry-run
		$ veeam-jobctl update -f job_updates.yaml --fail-on-error
	`),
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	// the whole file is validated before anything is sent
	patches, err := jobpatch.Load(updateFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := newClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	u := updater.New(client,
		updater.WithDryRun(updateDryRun),
		updater.WithLogger(logger),
	)
	summary := u.Run(cmd.Context(), patches)

	if updateDryRun {
		formatter.Output(updateHeaders, resultRows(summary.Results))
	}

	if err := cmd.Context().Err(); err != nil {
		return err
	}
	if updateFailOnError && summary.Err != nil {
		failed := multierr.Errors(summary.Err)
		logger.Debug("failed jobs", zap.Errors("errors", failed))
		return fmt.Errorf("%d of %d jobs failed: %w", len(failed), len(patches), summary.Err)
	}
	return nil
}

func resultRows(results []updater.Result) [][]string {
	data := make([][]string, 0, len(results))
	for _, r := range results {
		payload := ""
		if len(r.Payload) > 0 {
			payload = updater.PayloadString(r.Payload)
		}
		if r.Err != nil {
			payload = r.Err.Error()
		}
		data = append(data, []string{r.Name, r.JobID, r.Outcome.String(), payload})
	}
	return data
}

func init() {
	flags := updateCmd.Flags()
	flags.StringVarP(&updateFile, "file", "f", "", "YAML file with job patches")
	flags.BoolVar(&updateDryRun, "dry-run", false, "only print the payloads, do not change any job")
	flags.BoolVar(&updateFailOnError, "fail-on-error", false, "exit non-zero when any job could not be updated")
	_ = updateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(updateCmd)
}
