// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/modelscript/modelscript/internal/config"
	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/host/hosttest"
	"github.com/modelscript/modelscript/internal/logging"
	"github.com/modelscript/modelscript/internal/observability"
	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/script/bridge"
	"github.com/modelscript/modelscript/internal/script/engine"
	"github.com/modelscript/modelscript/internal/script/local"
	"github.com/modelscript/modelscript/internal/script/remote"
)

// runtime bundles everything a command needs to serve script executions
// against the demo in-memory document.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *host.SerialDispatcher
	doc        *hosttest.MemDocument
	engine     *engine.Engine
	obs        *observability.Server // nil when metrics are disabled
}

// buildRuntime loads configuration, wires logging, and constructs the
// engine. The engine is not yet initialized and the observability server,
// if any, is not yet started.
func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Setup("modelscript", version, cfg.LogFormat, nil)
	slog.SetDefault(logger)

	dispatcher := host.NewSerialDispatcher()
	doc := hosttest.NewMemDocument("demo-document")
	br := bridge.New(dispatcher, doc, logger)

	opts := []engine.Option{engine.WithLogger(logger)}

	var obs *observability.Server
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, nil)
		opts = append(opts, engine.WithMetrics(engine.NewMetrics(obs.Registry())))
	}

	eng, err := engine.New(providerFactory(cfg, logger), br, opts...)
	if err != nil {
		_ = dispatcher.Close()
		return nil, err
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		doc:        doc,
		engine:     eng,
		obs:        obs,
	}, nil
}

// providerFactory builds providers from configuration for the engine's
// mode switching.
func providerFactory(cfg *config.Config, logger *slog.Logger) engine.ProviderFactory {
	return func(mode script.Mode) (script.Provider, error) {
		switch mode {
		case script.ModeLocal:
			return local.New(local.Config{
				Dir:      cfg.Local.Dir,
				Debounce: cfg.Local.Debounce,
				Logger:   logger,
			}), nil
		case script.ModeRemote:
			return remote.New(remote.Config{
				Repository: cfg.Remote.Repository,
				Branch:     cfg.Remote.Branch,
				CacheDir:   cfg.Remote.CacheDir,
				Expiry:     cfg.Remote.Expiry,
				Logger:     logger,
			}), nil
		default:
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
	}
}

// close releases runtime resources in dependency order.
func (r *runtime) close() {
	if err := r.engine.Close(); err != nil {
		r.logger.Warn("engine close failed", "error", err)
	}
	if err := r.dispatcher.Close(); err != nil {
		r.logger.Warn("dispatcher close failed", "error", err)
	}
}
