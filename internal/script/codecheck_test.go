// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscript/modelscript/internal/script"
)

func TestCheckSource_Forbidden(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"os call", `os.execute("ls")`},
		{"os with spaces", `os . getenv("HOME")`},
		{"io call", `local f = io.open("/etc/passwd")`},
		{"require paren", `require("socket")`},
		{"require string", `require "socket"`},
		{"dofile", `dofile("other.lua")`},
		{"loadfile", `loadfile("other.lua")`},
		{"loadstring", `loadstring("return 1")()`},
		{"at line start", "os.exit()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := script.CheckSource([]byte(tt.source))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "forbidden")
		})
	}
}

func TestCheckSource_Allowed(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"plain function", `function run() return 1 end`},
		{"host calls", `host.log("info", "hello")`},
		{"identifier suffix", `local chaos = 1; chaos.field = 2`},
		{"method on own table", `local t = {}; t.os = 1`},
		{"word containing require", `local requires_review = true`},
		{"string math", `local x = math.floor(1.5)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, script.CheckSource([]byte(tt.source)))
		})
	}
}

func TestCheckArtifact(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.lua")
	writeFile(t, good, []byte("function run() return 1 end"))
	assert.NoError(t, script.CheckArtifact(good))

	bad := filepath.Join(dir, "bad.lua")
	writeFile(t, bad, []byte(`io.write("x")`))
	assert.Error(t, script.CheckArtifact(bad))
}

func TestCheckArtifact_TooLarge(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.lua")
	writeFile(t, big, bytes.Repeat([]byte("-- padding\n"), 100_000))

	err := script.CheckArtifact(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestCheckArtifact_Missing(t *testing.T) {
	err := script.CheckArtifact(filepath.Join(t.TempDir(), "nope.lua"))
	assert.Error(t, err)
}
