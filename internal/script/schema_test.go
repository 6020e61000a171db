// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelscript/modelscript/internal/script"
)

func TestGenerateSchema(t *testing.T) {
	data, err := script.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, script.SchemaID(), schema["$id"])
	assert.Equal(t, "ModelScript Manifest", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "version")
	assert.Contains(t, props, "entryArtifact")
	assert.Contains(t, props, "capabilities")
}

func TestValidateSchema(t *testing.T) {
	valid := []byte(`{
  "name": "ok",
  "version": "1.0.0",
  "entryArtifact": "main.lua",
  "entryPoint": "run"
}`)
	assert.NoError(t, script.ValidateSchema(valid))
}

func TestValidateSchema_LegacyAliasesPass(t *testing.T) {
	// Legacy manifests carry extra fields the schema does not declare.
	legacy := []byte(`{
  "name": "legacy",
  "version": "1.0.0",
  "entryAssembly": "main.lua",
  "entryType": "run"
}`)
	assert.NoError(t, script.ValidateSchema(legacy))
}

func TestValidateSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not JSON", "{{{"},
		{"wrong type for name", `{"name": 42, "version": "1.0.0"}`},
		{"wrong type for stackOrder", `{"name": "ok", "version": "1.0.0", "stackOrder": "first"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, script.ValidateSchema([]byte(tt.data)))
		})
	}
}
