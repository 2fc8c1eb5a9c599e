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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
)

var errNoChanges = errors.New("at least one --change is required")

func newCheckCmd(a *app) *cobra.Command {
	var (
		changes       []string
		justification string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a proposed change is within governance limits",
		Long: `Check runs the change waterfall (critical-path limit, change budget,
approval policy) for the given files and prints the decision as JSON.

Each --change is PATH=LINES, where LINES is the total lines added plus
removed in that file. Pass --justification when the config sets
require_justification. Exits 2 when the change is blocked.`,
		Example: `  scalpel check --change src/security/auth.py=30 --change docs/README.md=4`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, lines, err := parseChanges(changes)
			if err != nil {
				return err
			}

			trail, closeTrail, err := a.openTrail()
			if err != nil {
				return err
			}
			defer closeTrail()

			opts := []engine.Option{engine.WithLogger(a.slog())}
			if trail != nil {
				opts = append(opts, engine.WithAuditTrail(trail))
			}
			eng := engine.New(a.config, opts...)

			res := eng.CheckChangeAllowed(cmd.Context(), files, lines, engine.WithJustification(justification))
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Allowed {
				return &ExitError{Code: 2, Reason: res.Reason}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&changes, "change", "c", nil, "PATH=LINES for each changed file (repeatable)")
	cmd.Flags().StringVarP(&justification, "justification", "j", "", "Why the change is needed (required when require_justification is set)")
	return cmd
}

// parseChanges turns PATH=LINES pairs into the engine's inputs. A path
// given twice has its line counts summed.
func parseChanges(pairs []string) ([]string, map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil, errNoChanges
	}

	files := make([]string, 0, len(pairs))
	lines := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		i := strings.LastIndex(pair, "=")
		if i < 0 || strings.TrimSpace(pair[:i]) == "" {
			return nil, nil, fmt.Errorf("invalid --change %q: want PATH=LINES", pair)
		}
		path := strings.TrimSpace(pair[:i])
		n, err := strconv.Atoi(strings.TrimSpace(pair[i+1:]))
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("invalid --change %q: LINES must be a non-negative integer", pair)
		}
		if _, seen := lines[path]; !seen {
			files = append(files, path)
		}
		lines[path] += n
	}
	return files, lines, nil
}
