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
	"github.com/bizflycloud/bizflyctl/formatter"
	"github.com/spf13/cobra"

	"github.com/bizflycloud/veeam-jobctl/pkg/config"
	"github.com/bizflycloud/veeam-jobctl/pkg/exporter"
	"github.com/bizflycloud/veeam-jobctl/pkg/veeamapi"
)

var (
	listLimit        int
	listIncludeExtra bool
	listJobsHeaders  = []string{"ID", "Name", "Type", "Platform", "State"}
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup jobs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		limit := flagOrEnv(cmd, "limit", listLimit, cfg.JobLimit)
		if err := validateLimits(limit, 0); err != nil {
			return err
		}

		client, err := newClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		jobs, err := exporter.New(client,
			exporter.WithLimit(limit),
			exporter.WithExtraCollections(listIncludeExtra),
			exporter.WithLogger(logger),
		).Collect(cmd.Context())
		if err != nil {
			return err
		}

		formatter.Output(listJobsHeaders, jobRows(jobs))
		return nil
	},
}

func jobRows(jobs []veeamapi.Job) [][]string {
	data := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, []string{
			job.ID(),
			job.Name(),
			job.Field("type"),
			job.Field("platform"),
			job.Field("state"),
		})
	}
	return data
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of jobs returned by the API (default $VEEAM_JOB_LIMIT or server default)")
	listCmd.Flags().BoolVar(&listIncludeExtra, "include-extra", false, "also list backupCopyJobs, replicationJobs and fileShareBackupJobs")
	rootCmd.AddCommand(listCmd)
}
