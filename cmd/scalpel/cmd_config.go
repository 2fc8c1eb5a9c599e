// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the governance configuration",
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective governance config after file and env overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, a.config)
			case "yaml":
				if a.source.FromFile {
					fmt.Fprintf(out, "# source: %s\n", a.source.Path)
				} else {
					fmt.Fprintln(out, "# source: built-in defaults")
				}
				for _, k := range a.source.Verified {
					fmt.Fprintf(out, "# verified: %s\n", k)
				}
				for _, env := range a.source.Overrides {
					fmt.Fprintf(out, "# override: %s\n", env)
				}
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(a.config); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}
		},
	}
	showCmd.Flags().StringVarP(&format, "format", "o", "yaml", "Output format: yaml or json")

	configCmd.AddCommand(showCmd)
	return configCmd
}
