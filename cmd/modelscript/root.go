// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// NewRootCmd creates the root command for the modelscript CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modelscript",
		Short: "modelscript - dynamic extension runtime",
		Long: `modelscript discovers, caches, hot-reloads, and executes scripts
against a transactional document host. Scripts come from a watched local
directory (development) or a TTL-cached remote source (production).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	cmd.PersistentFlags().String("mode", "", "provider mode (local or remote)")
	cmd.PersistentFlags().String("log-format", "", "log format (json or text)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewScriptsCmd())

	return cmd
}
