// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelscript/modelscript/internal/script"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the script engine until interrupted",
		Long: `Run the script engine in the configured mode. In local mode the
scripts directory is watched and edits hot-reload; in remote mode the cached
script set is refreshed when stale.`,
		RunE: runRun,
	}

	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.engine.Subscribe(func(s script.Snapshot) {
		rt.logger.Info("scripts reloaded", "scripts", len(s.Records), "names", s.Names())
	})

	if err := rt.engine.Initialize(ctx, rt.cfg.ScriptMode()); err != nil {
		return err
	}

	if rt.obs != nil {
		errCh, err := rt.obs.Start()
		if err != nil {
			return err
		}
		go func() {
			for e := range errCh {
				rt.logger.Error("observability server failed", "error", e)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = rt.obs.Stop(shutdownCtx)
		}()
	}

	rt.logger.Info("script engine running",
		"mode", rt.cfg.Mode,
		"scripts", len(rt.engine.LoadedScripts()))

	<-ctx.Done()
	rt.logger.Info("shutting down")
	return nil
}
