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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeScalpel/pkg/logging"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/audit"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/storage/badger"
)

// ExitError ends the process with Code without printing anything more.
// Used when the command already wrote its verdict.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %s", e.Code, e.Reason)
}

// app holds state shared by subcommands, filled in by the root
// PersistentPreRunE.
type app struct {
	// Flags
	configPath string
	projectDir string
	logLevel   string
	jsonLogs   bool
	logDir     string
	quiet      bool
	auditDB    string
	auditJSONL string
	noAudit    bool

	logger *logging.Logger
	config governance.Config
	source governance.Source
}

// newRootCmd builds the command tree and the state its commands share. A
// fresh tree per call keeps tests independent. Run it through execute so
// the logger is closed on every exit path.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "scalpel",
		Short:         "Governance guardrails for autonomous code changes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Governance config file (default: <project-dir>/.code-scalpel/config.json)")
	flags.StringVar(&a.projectDir, "project-dir", ".", "Project root containing .code-scalpel/")
	flags.StringVar(&a.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "Write logs as JSON")
	flags.StringVar(&a.logDir, "log-dir", "", "Also write JSON logs to a daily file in this directory")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "No console logs, so stderr stays clean when piping JSON output")
	flags.StringVar(&a.auditDB, "audit-db", "", "Audit BadgerDB directory (default: <project-dir>/.code-scalpel/audit)")
	flags.StringVar(&a.auditJSONL, "audit-jsonl", "", "Write audit records to this JSON-lines file instead of BadgerDB")
	flags.BoolVar(&a.noAudit, "no-audit", false, "Disable the audit trail")

	rootCmd.AddCommand(
		newConfigCmd(a),
		newCheckCmd(a),
		newMutateCmd(a),
		newAuditCmd(a),
		newServeCmd(a),
	)
	return rootCmd, a
}

// execute runs the command tree and then closes the logger. Cobra skips
// post-run hooks when RunE fails, so closing happens here instead.
func execute(root *cobra.Command, a *app) error {
	err := root.Execute()
	if a.logger != nil {
		if cerr := a.logger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// setup configures logging and loads governance config.
func (a *app) setup(stderr io.Writer) error {
	a.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(a.logLevel),
		Service: "scalpel",
		JSON:    a.jsonLogs,
		LogDir:  a.logDir,
		Quiet:   a.quiet,
		Output:  stderr,
	})

	loader := governance.NewLoader(a.configPath,
		governance.WithBaseDir(a.projectDir),
		governance.WithLogger(a.logger.Slog()),
	)
	cfg, src, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading governance config: %w", err)
	}
	a.config = cfg
	a.source = src
	a.logger.Debug("Governance config loaded",
		"path", src.Path,
		"from_file", src.FromFile,
		"overrides", len(src.Overrides),
	)
	return nil
}

func (a *app) slog() *slog.Logger {
	return a.logger.Slog()
}

// auditDBPath is the BadgerDB directory for the audit trail.
func (a *app) auditDBPath() string {
	if a.auditDB != "" {
		return a.auditDB
	}
	return filepath.Join(a.projectDir, governance.ConfigDirName, "audit")
}

// openTrail opens the configured audit sink. The returned trail is nil
// when auditing is off. The close function is always safe to call.
func (a *app) openTrail() (audit.Trail, func() error, error) {
	noop := func() error { return nil }

	if a.noAudit || (!a.config.Audit.LogAllChanges && !a.config.Audit.LogRejectedChanges) {
		return nil, noop, nil
	}

	if a.auditJSONL != "" {
		w, err := audit.OpenJSONLFile(a.auditJSONL)
		if err != nil {
			return nil, noop, err
		}
		return w, w.Close, nil
	}

	cfg := badger.DefaultConfig(a.auditDBPath())
	cfg.Logger = a.slog()
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, noop, fmt.Errorf("opening audit db: %w", err)
	}
	store, err := audit.NewBadgerStore(db, a.config.Audit.RetentionDays)
	if err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	return store, db.Close, nil
}

// writeJSON pretty-prints v.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
