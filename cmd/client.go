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
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bizflycloud/veeam-jobctl/pkg/config"
	"github.com/bizflycloud/veeam-jobctl/pkg/veeamapi"
)

// newClient builds an authenticated API client from cfg.
func newClient(ctx context.Context, cfg *config.Config) (*veeamapi.Client, error) {
	if !cfg.VerifySSL() {
		logger.Warn("TLS certificate verification is disabled")
	}

	client, err := veeamapi.NewClient(
		veeamapi.WithServerURL(cfg.BaseURL()),
		veeamapi.WithCredentials(cfg.Username, cfg.Password),
		veeamapi.WithAPIVersion(cfg.APIVersion),
		veeamapi.WithInsecureSkipVerify(!cfg.VerifySSL()),
		veeamapi.WithRetryTimeout(viper.GetDuration("retry_timeout")),
		veeamapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	logger.Debug("authenticating", zap.String("server", cfg.BaseURL()), zap.String("user", cfg.Username))
	if err := client.Authenticate(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// flagOrEnv prefers an explicitly set flag over the environment value.
func flagOrEnv(cmd *cobra.Command, name string, flagValue, envValue int) int {
	if cmd.Flags().Changed(name) {
		return flagValue
	}
	return envValue
}

func validateLimits(limit, pageSize int) error {
	if err := validation.Validate(limit, validation.Min(0)); err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	if err := validation.Validate(pageSize, validation.Min(0), validation.Max(config.MaxPageSize)); err != nil {
		return fmt.Errorf("page-size: %w", err)
	}
	return nil
}
