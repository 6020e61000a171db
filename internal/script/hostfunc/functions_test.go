// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package hostfunc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/host/hosttest"
	"github.com/modelscript/modelscript/internal/script/capability"
	"github.com/modelscript/modelscript/internal/script/hostfunc"
	"github.com/modelscript/modelscript/internal/script/lua"
)

// fixture wires a gateway into a fresh Lua state with an open transaction.
type fixture struct {
	doc *hosttest.MemDocument
	tx  host.Transaction
	L   *glua.LState
}

func newFixture(t *testing.T, caps []string) *fixture {
	t.Helper()

	doc := hosttest.NewMemDocument("test-doc")
	enforcer := capability.NewEnforcer()
	require.NoError(t, enforcer.SetGrants("test-script", caps))

	tx, err := doc.Begin("test")
	require.NoError(t, err)

	L, err := lua.NewStateFactory().NewState(context.Background())
	require.NoError(t, err)
	t.Cleanup(L.Close)

	hostfunc.New(doc, doc, enforcer, nil).Register(L, "test-script")
	return &fixture{doc: doc, tx: tx, L: L}
}

func allCaps() []string {
	return []string{"doc.read", "doc.write.param", "doc.create", "ui.message"}
}

func TestNew_NilEnforcerPanics(t *testing.T) {
	doc := hosttest.NewMemDocument("d")
	assert.Panics(t, func() { hostfunc.New(doc, doc, nil, nil) })
}

func TestGateway_Selection(t *testing.T) {
	f := newFixture(t, allCaps())
	a := f.doc.AddElement("Walls", "Basic Wall", nil)
	b := f.doc.AddElement("Doors", "Single Door", nil)
	f.doc.Select(a, b)

	require.NoError(t, f.L.DoString(`
		local sel = host.selection()
		count = #sel
		first = sel[1]
	`))

	assert.Equal(t, glua.LNumber(2), f.L.GetGlobal("count"))
	assert.Equal(t, a.String(), f.L.GetGlobal("first").String())
}

func TestGateway_ElementAndParams(t *testing.T) {
	f := newFixture(t, allCaps())
	id := f.doc.AddElement("Walls", "Basic Wall", map[string]host.Value{
		"Mark":   host.StringValue("W-1"),
		"Height": host.NumberValue(3.5),
	})

	require.NoError(t, f.L.DoString(`
		local e = host.element("`+id.String()+`")
		category = e.category
		mark = host.get_param("`+id.String()+`", "Mark")
		height = host.get_param("`+id.String()+`", "Height")
	`))

	assert.Equal(t, "Walls", f.L.GetGlobal("category").String())
	assert.Equal(t, glua.LString("W-1"), f.L.GetGlobal("mark"))
	assert.Equal(t, glua.LNumber(3.5), f.L.GetGlobal("height"))
}

func TestGateway_ElementNotFound(t *testing.T) {
	f := newFixture(t, allCaps())

	require.NoError(t, f.L.DoString(`
		e, err = host.element("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	`))

	assert.Equal(t, glua.LNil, f.L.GetGlobal("e"))
	assert.Contains(t, f.L.GetGlobal("err").String(), "not found")
}

func TestGateway_InvalidID(t *testing.T) {
	f := newFixture(t, allCaps())

	require.NoError(t, f.L.DoString(`
		e, err = host.element("not-a-ulid")
	`))

	assert.Equal(t, glua.LNil, f.L.GetGlobal("e"))
	assert.Contains(t, f.L.GetGlobal("err").String(), "invalid element id")
}

func TestGateway_SetParam(t *testing.T) {
	f := newFixture(t, allCaps())
	id := f.doc.AddElement("Walls", "Basic Wall", nil)

	require.NoError(t, f.L.DoString(`
		ok = host.set_param("`+id.String()+`", "Mark", "W-99")
		readback = host.get_param("`+id.String()+`", "Mark")
	`))

	// The staged write is visible to the open transaction before commit.
	assert.Equal(t, glua.LTrue, f.L.GetGlobal("ok"))
	assert.Equal(t, glua.LString("W-99"), f.L.GetGlobal("readback"))

	require.NoError(t, f.tx.Commit())
	v, err := f.doc.Parameter(id, "Mark")
	require.NoError(t, err)
	assert.Equal(t, "W-99", v.Str)
}

func TestGateway_SetParamOutsideTransaction(t *testing.T) {
	f := newFixture(t, allCaps())
	id := f.doc.AddElement("Walls", "Basic Wall", nil)
	require.NoError(t, f.tx.Rollback())

	require.NoError(t, f.L.DoString(`
		ok, err = host.set_param("`+id.String()+`", "Mark", "late")
	`))

	assert.Equal(t, glua.LNil, f.L.GetGlobal("ok"))
	assert.Contains(t, f.L.GetGlobal("err").String(), "no open transaction")
}

func TestGateway_CreateInstance(t *testing.T) {
	f := newFixture(t, allCaps())

	require.NoError(t, f.L.DoString(`
		id, err = host.create_instance("Basic Wall", "Walls")
		ok = host.set_param(id, "Mark", "NEW-1")
	`))

	require.Equal(t, glua.LNil, f.L.GetGlobal("err"))
	assert.Equal(t, glua.LTrue, f.L.GetGlobal("ok"))

	require.NoError(t, f.tx.Commit())
	ids := f.doc.ElementsByCategory("Walls")
	require.Len(t, ids, 1)
}

func TestGateway_Message(t *testing.T) {
	f := newFixture(t, allCaps())

	require.NoError(t, f.L.DoString(`host.message("hello from lua")`))
	assert.Equal(t, []string{"hello from lua"}, f.doc.Messages())
}

func TestGateway_MessageWithoutSurface(t *testing.T) {
	doc := hosttest.NewMemDocument("d")
	enforcer := capability.NewEnforcer()
	require.NoError(t, enforcer.SetGrants("s", []string{"ui.message"}))

	L, err := lua.NewStateFactory().NewState(context.Background())
	require.NoError(t, err)
	defer L.Close()

	hostfunc.New(doc, nil, enforcer, nil).Register(L, "s")

	require.NoError(t, L.DoString(`ok, err = host.message("x")`))
	assert.Equal(t, glua.LNil, L.GetGlobal("ok"))
	assert.Contains(t, L.GetGlobal("err").String(), "unavailable")
}

func TestGateway_CapabilityDenied(t *testing.T) {
	f := newFixture(t, []string{"doc.read"})
	id := f.doc.AddElement("Walls", "Basic Wall", nil)

	// Reads succeed with doc.read only.
	require.NoError(t, f.L.DoString(`e = host.element("`+id.String()+`")`))

	// Writes raise.
	err := f.L.DoString(`host.set_param("` + id.String() + `", "Mark", "x")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability denied")

	err = f.L.DoString(`host.create_instance("Basic Wall", "Walls")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability denied")

	err = f.L.DoString(`host.message("x")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability denied")
}

func TestGateway_NoCapabilityNeededForLogAndID(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.L.DoString(`
		host.log("info", "running")
		id = host.new_id()
	`))
	assert.Len(t, f.L.GetGlobal("id").String(), 26)
}

func TestGateway_SetParamValueTypes(t *testing.T) {
	f := newFixture(t, allCaps())
	id := f.doc.AddElement("Walls", "Basic Wall", nil)

	require.NoError(t, f.L.DoString(`
		host.set_param("`+id.String()+`", "Height", 4.2)
		host.set_param("`+id.String()+`", "Structural", true)
		bad, baderr = host.set_param("`+id.String()+`", "Nested", {})
	`))

	v, err := f.doc.Parameter(id, "Height")
	require.NoError(t, err)
	assert.Equal(t, host.KindNumber, v.Kind)
	assert.Equal(t, 4.2, v.Num)

	v, err = f.doc.Parameter(id, "Structural")
	require.NoError(t, err)
	assert.Equal(t, host.KindBool, v.Kind)
	assert.True(t, v.Bool)

	assert.Equal(t, glua.LNil, f.L.GetGlobal("bad"))
	assert.Contains(t, f.L.GetGlobal("baderr").String(), "unsupported")
}
