// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package hostfunc

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/modelscript/modelscript/internal/host"
)

// pushSuccess pushes a result value. Returns the Lua return count.
func pushSuccess(L *lua.LState, v lua.LValue) int {
	L.Push(v)
	return 1
}

// pushError pushes nil plus an error message. Returns the Lua return count.
func pushError(L *lua.LState, msg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(msg))
	return 2
}

// checkID parses a ULID argument. On failure it pushes nil+error and
// returns false; the caller should return 2.
func checkID(L *lua.LState, n int) (host.ElementID, bool) {
	s := L.CheckString(n)
	id, err := ulid.Parse(s)
	if err != nil {
		pushError(L, fmt.Sprintf("invalid element id %q", s))
		return host.ElementID{}, false
	}
	return id, true
}

// valueToLua converts a tagged host value to its Lua representation.
func valueToLua(v host.Value) lua.LValue {
	switch v.Kind {
	case host.KindNumber:
		return lua.LNumber(v.Num)
	case host.KindBool:
		return lua.LBool(v.Bool)
	default:
		return lua.LString(v.Str)
	}
}

// luaToValue converts a Lua scalar to a tagged host value.
func luaToValue(lv lua.LValue) (host.Value, error) {
	switch v := lv.(type) {
	case lua.LString:
		return host.StringValue(string(v)), nil
	case lua.LNumber:
		return host.NumberValue(float64(v)), nil
	case lua.LBool:
		return host.BoolValue(bool(v)), nil
	default:
		return host.Value{}, fmt.Errorf("unsupported parameter value type %s", lv.Type().String())
	}
}
