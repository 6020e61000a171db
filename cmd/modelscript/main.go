// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Command modelscript hosts the dynamic extension runtime against a demo
// in-memory document. The real host application embeds the same packages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
