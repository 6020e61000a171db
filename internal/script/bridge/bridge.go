// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package bridge loads one script's artifact, instantiates its entry point,
// and runs it inside a host transaction, guaranteeing atomic commit or
// rollback. The actual call is marshaled onto the host's document thread.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/script/capability"
	"github.com/modelscript/modelscript/internal/script/hostfunc"
	luart "github.com/modelscript/modelscript/internal/script/lua"
)

// Result is the outcome of one script execution. Immutable after return,
// never persisted.
type Result struct {
	Success bool
	Message string
	Elapsed time.Duration
	Output  map[string]any
}

// phase names the bridge's execution states for logging.
type phase string

const (
	phaseLoading    phase = "loading"
	phaseExecuting  phase = "executing"
	phaseCommitted  phase = "committed"
	phaseRolledBack phase = "rolled-back"
)

// Bridge executes scripts against a host document. It owns nothing
// persistent; it borrows a record and a document for the duration of one
// call.
type Bridge struct {
	factory    *luart.StateFactory
	dispatcher host.Dispatcher
	surface    host.UserSurface
	logger     *slog.Logger
}

// New creates a bridge. dispatcher is required; surface may be nil when the
// host has no user surface.
func New(dispatcher host.Dispatcher, surface host.UserSurface, logger *slog.Logger) *Bridge {
	if dispatcher == nil {
		panic("bridge.New: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		factory:    luart.NewStateFactory(),
		dispatcher: dispatcher,
		surface:    surface,
		logger:     logger,
	}
}

// Execute runs one script transactionally. Load failures return a failure
// result without any host interaction; an error raised by the entry point
// rolls the transaction back before the result is reported. The call blocks
// until the document-thread invocation completes; once dispatched, execution
// runs to completion or to an unhandled error.
func (b *Bridge) Execute(ctx context.Context, rec script.Record, doc host.Document) Result {
	start := time.Now()
	name := rec.Manifest.Name

	// Loading: everything here happens off the document thread and touches
	// only the artifact, never the host.
	entry, state, err := b.load(ctx, rec)
	if err != nil {
		b.logger.Warn("script load failed",
			"script", name,
			"phase", string(phaseLoading),
			"error", err)
		return Result{Success: false, Message: err.Error(), Elapsed: time.Since(start)}
	}
	defer state.Close()

	if err := ctx.Err(); err != nil {
		return Result{Success: false, Message: err.Error(), Elapsed: time.Since(start)}
	}

	// Each execution gets its own enforcer so grants live exactly as long as
	// this run. Overlapping executions of the same script never see each
	// other's grants or their removal.
	enforcer := capability.NewEnforcer()
	if err := enforcer.SetGrants(name, rec.Manifest.Capabilities); err != nil {
		return Result{Success: false, Message: err.Error(), Elapsed: time.Since(start)}
	}

	gateway := hostfunc.New(doc, b.surface, enforcer, b.logger)

	b.logger.Debug("dispatching script to document thread",
		"script", name,
		"phase", string(phaseExecuting))

	var output map[string]any
	err = b.dispatcher.Invoke(ctx, func() error {
		return b.run(state, entry, gateway, doc, rec, &output)
	})

	elapsed := time.Since(start)
	if err != nil {
		b.logger.Warn("script execution failed",
			"script", name,
			"phase", string(phaseRolledBack),
			"elapsed", elapsed,
			"error", err)
		return Result{Success: false, Message: err.Error(), Elapsed: elapsed}
	}

	b.logger.Info("script executed",
		"script", name,
		"phase", string(phaseCommitted),
		"elapsed", elapsed)
	return Result{Success: true, Message: "ok", Elapsed: elapsed, Output: output}
}

// load reads the artifact, evaluates it in a fresh sandboxed state, and
// resolves the entry point function.
func (b *Bridge) load(ctx context.Context, rec script.Record) (lua.LValue, *lua.LState, error) {
	name := rec.Manifest.Name

	code, err := os.ReadFile(filepath.Clean(rec.ArtifactPath))
	if err != nil {
		return nil, nil, oops.In("bridge").With("script", name).With("path", rec.ArtifactPath).Hint("artifact not loadable").Wrap(err)
	}

	state, err := b.factory.NewState(ctx)
	if err != nil {
		return nil, nil, oops.In("bridge").With("script", name).Wrap(err)
	}

	// Evaluating the chunk defines the script's globals, including the entry
	// point. The host table is not registered yet, so top-level code cannot
	// reach the document.
	if err := state.DoString(string(code)); err != nil {
		state.Close()
		return nil, nil, oops.In("bridge").With("script", name).With("entry", rec.Manifest.EntryArtifact).Hint("artifact failed to evaluate").Wrap(err)
	}

	entry := state.GetGlobal(rec.Manifest.EntryPoint)
	if entry.Type() != lua.LTFunction {
		state.Close()
		return nil, nil, oops.In("bridge").With("script", name).With("entryPoint", rec.Manifest.EntryPoint).New(
			fmt.Sprintf("entry point %q is %s, want function", rec.Manifest.EntryPoint, entry.Type().String()))
	}

	return entry, state, nil
}

// run executes on the document thread: open the transaction, bind the
// gateway, call the entry point, then commit or roll back.
func (b *Bridge) run(state *lua.LState, entry lua.LValue, gateway *hostfunc.Gateway, doc host.Document, rec script.Record, output *map[string]any) error {
	name := rec.Manifest.Name

	tx, err := doc.Begin(name)
	if err != nil {
		return oops.In("bridge").With("script", name).Hint("failed to open transaction").Wrap(err)
	}

	gateway.Register(state, name)

	callErr := state.CallByParam(lua.P{
		Fn:      entry,
		NRet:    1,
		Protect: true,
	})
	if callErr != nil {
		// Roll back before reporting so no partial mutation is visible.
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Error("rollback failed after script error",
				"script", name,
				"error", rbErr)
		}
		return oops.In("bridge").With("script", name).With("entryPoint", rec.Manifest.EntryPoint).Wrap(callErr)
	}

	ret := state.Get(-1)
	state.Pop(1)
	*output = tableToMap(ret)

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Error("rollback failed after commit error",
				"script", name,
				"error", rbErr)
		}
		return oops.In("bridge").With("script", name).Hint("commit failed").Wrap(err)
	}

	return nil
}

// tableToMap converts a script's returned Lua table into structured output
// data. Non-table returns yield nil.
func tableToMap(lv lua.LValue) map[string]any {
	table, ok := lv.(*lua.LTable)
	if !ok {
		return nil
	}
	m := make(map[string]any)
	table.ForEach(func(k, v lua.LValue) {
		m[k.String()] = luaToAny(v)
	})
	if len(m) == 0 {
		return nil
	}
	return m
}

// luaToAny converts a Lua value to a JSON-compatible Go value.
func luaToAny(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		// Array part first; fall back to map form when keys are not 1..n.
		length := v.Len()
		if length > 0 {
			arr := make([]any, 0, length)
			for i := 1; i <= length; i++ {
				arr = append(arr, luaToAny(v.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]any)
		v.ForEach(func(k, val lua.LValue) {
			m[k.String()] = luaToAny(val)
		})
		return m
	default:
		return nil
	}
}
