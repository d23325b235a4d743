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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bizflycloud/veeam-jobctl/pkg/config"
	"github.com/bizflycloud/veeam-jobctl/pkg/logging"
)

const (
	defaultLogLevel     = "info"
	defaultEnvFile      = ".env"
	defaultRetryTimeout = 30 * time.Second
	configName          = ".veeam-jobctl"
	envPrefix           = "VEEAM"
)

var (
	cfgFile string

	logOutput io.Writer = os.Stderr
	logger              = logging.Fallback(logOutput)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "veeam-jobctl",
	Short: "Veeam Backup & Replication job tooling.",
	Long: `veeam-jobctl exports and bulk-edits backup jobs through the
Veeam Backup & Replication REST API.

Connection settings are read from VEEAM_* environment variables, optionally
loaded from a .env file.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Println(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run executes the command tree and logs a failure exactly once.
func run(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Error("execution failed", zap.Error(err))
	}
	_ = logger.Sync()
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.veeam-jobctl.yaml)")
	flags.String("log-level", defaultLogLevel, "log level: debug, info, warn or error")
	flags.String("log-file", "", "also write logs to this file, rotated by size")
	flags.String("env-file", defaultEnvFile, "dotenv file with VEEAM_* variables; existing variables win")
	flags.Duration("retry-timeout", defaultRetryTimeout, "how long failed read requests are retried, 0 disables retries")

	for _, name := range []string{"log-level", "log-file", "env-file", "retry-timeout"} {
		_ = viper.BindPFlag(configKey(name), flags.Lookup(name))
	}
}

// configKey maps a flag name to its config file key.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, _ []string) error {
	// errors before the configured logger exists still need a log line
	logger = logging.Fallback(logOutput)

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return err
		}

		// Search config in home directory with name ".veeam-jobctl" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(configName)
	}

	viper.SetDefault("output_dir", ".")
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	configErr := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(configErr, &notFound) && cfgFile == "" {
		configErr = nil
	}

	l, err := logging.NewTo(logOutput, viper.GetString("log_level"), viper.GetString("log_file"))
	if err != nil {
		return err
	}
	logger = l.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd.Name()))

	if configErr != nil {
		return fmt.Errorf("read config file: %w", configErr)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file: " + used)
	}

	return config.LoadDotEnv(viper.GetString("env_file"))
}
