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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/mutation"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

type mutateFlags struct {
	original  string
	fixed     string
	tests     []string
	language  string
	minScore  float64
	maxExtra  int
	timeout   time.Duration
	keepFiles bool
}

func newMutateCmd(a *app) *cobra.Command {
	f := &mutateFlags{}

	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Run the mutation gate to check that tests really verify a fix",
		Long: `Mutate runs the tests against the fixed code, then against the original
code, then against generated mutations of the fix. A fix whose tests also
pass on the original code is hollow. Prints the gate result as JSON and
exits 2 when the fix does not pass.`,
		Example: `  scalpel mutate --original calc_old.py --fixed calc.py --test test_calc.py`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			language, err := resolveLanguage(f.language)
			if err != nil {
				return err
			}
			original, err := os.ReadFile(f.original)
			if err != nil {
				return fmt.Errorf("reading original: %w", err)
			}
			fixed, err := os.ReadFile(f.fixed)
			if err != nil {
				return fmt.Errorf("reading fixed: %w", err)
			}

			trail, closeTrail, err := a.openTrail()
			if err != nil {
				return err
			}
			defer closeTrail()

			executor := sandbox.NewLocal(a.slog(),
				sandbox.WithCommandTimeout(f.timeout),
				sandbox.WithKeepWorkspace(f.keepFiles),
			)
			opts := []engine.Option{
				engine.WithLogger(a.slog()),
				engine.WithExecutor(executor),
				engine.WithMutationOptions(
					mutation.WithMinMutationScore(f.minScore),
					mutation.WithMaxAdditionalMutations(f.maxExtra),
				),
			}
			if trail != nil {
				opts = append(opts, engine.WithAuditTrail(trail))
			}
			eng := engine.New(a.config, opts...)

			res, err := eng.VerifyFix(cmd.Context(), string(original), string(fixed), f.tests, language)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Passed {
				return &ExitError{Code: 2, Reason: "fix did not pass the mutation gate"}
			}
			return nil
		},
	}

	defaults := mutation.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.original, "original", "", "File with the code before the fix")
	flags.StringVar(&f.fixed, "fixed", "", "File with the fixed code")
	flags.StringArrayVarP(&f.tests, "test", "t", nil, "Test file (repeatable)")
	flags.StringVarP(&f.language, "language", "l", "python", "Language: python or go")
	flags.Float64Var(&f.minScore, "min-score", defaults.MinMutationScore, "Minimum mutation score to pass")
	flags.IntVar(&f.maxExtra, "max-mutations", defaults.MaxAdditionalMutations, "Maximum generated mutations beyond the revert")
	flags.DurationVar(&f.timeout, "timeout", sandbox.DefaultConfig().CommandTimeout, "Timeout per test run")
	flags.BoolVar(&f.keepFiles, "keep-workspace", false, "Keep sandbox directories for debugging")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("fixed")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

// resolveLanguage maps --language to a registry name the mutation gate can
// mutate. Case and surrounding space are ignored.
func resolveLanguage(name string) (string, error) {
	cfg, ok := lang.Get(name)
	if !ok || !mutation.Supports(cfg.Name) {
		return "", fmt.Errorf("unsupported --language %q: want %s or %s", name, lang.Python, lang.Go)
	}
	return cfg.Name, nil
}
