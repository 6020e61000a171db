// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelscript/modelscript/internal/host"
)

// NewScriptsCmd creates the scripts subcommand group.
func NewScriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Inspect and execute discovered scripts",
	}

	cmd.AddCommand(newScriptsListCmd())
	cmd.AddCommand(newScriptsExecCmd())

	return cmd
}

func newScriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scripts in the current snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.engine.Initialize(cmd.Context(), rt.cfg.ScriptMode()); err != nil {
				return err
			}

			records := rt.engine.LoadedScripts()
			if len(records) == 0 {
				cmd.Println("no scripts discovered")
				return nil
			}
			for _, rec := range records {
				cmd.Printf("%-24s %-10s %-7s %s\n",
					rec.Manifest.Name,
					rec.Manifest.Version,
					rec.Source,
					rec.Manifest.Tooltip)
			}
			return nil
		},
	}
}

func newScriptsExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <name>",
		Short: "Execute a script against the demo document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.engine.Initialize(cmd.Context(), rt.cfg.ScriptMode()); err != nil {
				return err
			}

			seedDemoDocument(rt)

			result := rt.engine.ExecuteScript(cmd.Context(), args[0], rt.doc)

			out, err := json.MarshalIndent(map[string]any{
				"success": result.Success,
				"message": result.Message,
				"elapsed": result.Elapsed.String(),
				"output":  result.Output,
			}, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))

			if !result.Success {
				return fmt.Errorf("script %s failed", args[0])
			}
			return nil
		},
	}
}

// seedDemoDocument populates the in-memory document with a few elements so
// sample scripts have something to query and mutate.
func seedDemoDocument(rt *runtime) {
	a := rt.doc.AddElement("Walls", "Basic Wall", map[string]host.Value{
		"Mark":   host.StringValue("W-101"),
		"Length": host.NumberValue(4.2),
	})
	b := rt.doc.AddElement("Walls", "Basic Wall", map[string]host.Value{
		"Mark":   host.StringValue("W-102"),
		"Length": host.NumberValue(6.0),
	})
	rt.doc.AddElement("Doors", "Single Door", map[string]host.Value{
		"Mark": host.StringValue("D-001"),
	})
	rt.doc.Select(a, b)
}
