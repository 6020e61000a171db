// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package hostfunc exposes host capabilities to scripts.
//
// Scripts see a `host` table with query and mutation functions. Functions
// that touch the document require capability grants from the script's
// manifest; mutations are additionally rejected by the host once the
// bridge's transaction is no longer open.
package hostfunc

import (
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/script/capability"
)

// Capability names checked by the gateway.
const (
	CapDocRead   = "doc.read"
	CapDocWrite  = "doc.write.param"
	CapDocCreate = "doc.create"
	CapUIMessage = "ui.message"
)

// Gateway provides host functions to scripts, bound to one document.
type Gateway struct {
	doc      host.Document
	surface  host.UserSurface
	enforcer *capability.Enforcer
	logger   *slog.Logger
}

// New creates a gateway. enforcer may not be nil; surface may be nil, in
// which case message() reports unavailability to the script.
func New(doc host.Document, surface host.UserSurface, enforcer *capability.Enforcer, logger *slog.Logger) *Gateway {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{doc: doc, surface: surface, enforcer: enforcer, logger: logger}
}

// Register adds the host table to a Lua state for the named script.
func (g *Gateway) Register(ls *lua.LState, scriptName string) {
	mod := ls.NewTable()

	// Logging and id generation need no capability.
	ls.SetField(mod, "log", ls.NewFunction(g.logFn(scriptName)))
	ls.SetField(mod, "new_id", ls.NewFunction(g.newIDFn()))

	// Document queries.
	ls.SetField(mod, "selection", ls.NewFunction(g.wrap(scriptName, CapDocRead, g.selectionFn())))
	ls.SetField(mod, "elements_by_category", ls.NewFunction(g.wrap(scriptName, CapDocRead, g.elementsByCategoryFn())))
	ls.SetField(mod, "element", ls.NewFunction(g.wrap(scriptName, CapDocRead, g.elementFn())))
	ls.SetField(mod, "get_param", ls.NewFunction(g.wrap(scriptName, CapDocRead, g.getParamFn())))

	// Document mutations.
	ls.SetField(mod, "set_param", ls.NewFunction(g.wrap(scriptName, CapDocWrite, g.setParamFn())))
	ls.SetField(mod, "create_instance", ls.NewFunction(g.wrap(scriptName, CapDocCreate, g.createInstanceFn())))

	// User surface.
	ls.SetField(mod, "message", ls.NewFunction(g.wrap(scriptName, CapUIMessage, g.messageFn())))

	ls.SetGlobal("host", mod)
}

func (g *Gateway) wrap(script, capName string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if !g.enforcer.Check(script, capName) {
			L.RaiseError("capability denied: %s requires %s", script, capName)
			return 0
		}
		return fn(L)
	}
}

func (g *Gateway) logFn(scriptName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := g.logger.With("script", scriptName)
		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return 0
	}
}

func (g *Gateway) newIDFn() lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(ulid.Make().String()))
		return 1
	}
}

// selectionFn returns the ids of selected elements.
// Lua signature: selection() -> {id, id, ...}
func (g *Gateway) selectionFn() lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.NewTable()
		for _, id := range g.doc.Selection() {
			t.Append(lua.LString(id.String()))
		}
		L.Push(t)
		return 1
	}
}

// elementsByCategoryFn returns ids of elements in a category.
// Lua signature: elements_by_category(category) -> {id, ...}
func (g *Gateway) elementsByCategoryFn() lua.LGFunction {
	return func(L *lua.LState) int {
		category := L.CheckString(1)
		t := L.NewTable()
		for _, id := range g.doc.ElementsByCategory(category) {
			t.Append(lua.LString(id.String()))
		}
		L.Push(t)
		return 1
	}
}

// elementFn returns a read-only view of one element.
// Lua signature: element(id) -> {id, category, type} or nil, error
func (g *Gateway) elementFn() lua.LGFunction {
	return func(L *lua.LState) int {
		id, ok := checkID(L, 1)
		if !ok {
			return 2
		}
		e, found := g.doc.Element(id)
		if !found {
			return pushError(L, "element not found: "+id.String())
		}
		t := L.NewTable()
		L.SetField(t, "id", lua.LString(e.ID.String()))
		L.SetField(t, "category", lua.LString(e.Category))
		L.SetField(t, "type", lua.LString(e.TypeName))
		return pushSuccess(L, t)
	}
}

// getParamFn reads a named parameter.
// Lua signature: get_param(id, name) -> value or nil, error
func (g *Gateway) getParamFn() lua.LGFunction {
	return func(L *lua.LState) int {
		id, ok := checkID(L, 1)
		if !ok {
			return 2
		}
		name := L.CheckString(2)

		v, err := g.doc.Parameter(id, name)
		if err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, valueToLua(v))
	}
}

// setParamFn writes a named parameter. Only valid while the execution's
// transaction is open.
// Lua signature: set_param(id, name, value) -> true or nil, error
func (g *Gateway) setParamFn() lua.LGFunction {
	return func(L *lua.LState) int {
		id, ok := checkID(L, 1)
		if !ok {
			return 2
		}
		name := L.CheckString(2)

		v, err := luaToValue(L.Get(3))
		if err != nil {
			return pushError(L, err.Error())
		}

		if err := g.doc.SetParameter(id, name, v); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

// createInstanceFn creates a new element from a type.
// Lua signature: create_instance(type, category) -> id or nil, error
func (g *Gateway) createInstanceFn() lua.LGFunction {
	return func(L *lua.LState) int {
		typeName := L.CheckString(1)
		category := L.CheckString(2)

		id, err := g.doc.CreateInstance(typeName, category)
		if err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LString(id.String()))
	}
}

// messageFn shows a blocking message to the user.
// Lua signature: message(text) -> true or nil, error
func (g *Gateway) messageFn() lua.LGFunction {
	return func(L *lua.LState) int {
		text := L.CheckString(1)
		if g.surface == nil {
			return pushError(L, "user surface unavailable")
		}
		if err := g.surface.ShowMessage(text); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}
