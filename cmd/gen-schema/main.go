// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Command gen-schema prints the JSON Schema for script.json manifests.
package main

import (
	"fmt"
	"os"

	"github.com/modelscript/modelscript/internal/script"
)

func main() {
	schema, err := script.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(schema))
}
