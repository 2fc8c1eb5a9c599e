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

	"github.com/AleutianAI/CodeScalpel/services/scalpel/audit"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/storage/badger"
)

func newAuditCmd(a *app) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	var (
		dbPath    string
		limit     int
		eventType string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.auditDBPath()
			}
			db, err := badger.Open(badger.DefaultConfig(dbPath))
			if err != nil {
				return fmt.Errorf("opening audit db: %w", err)
			}
			defer db.Close()

			store, err := audit.NewBadgerStore(db, a.config.Audit.RetentionDays)
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context(), audit.ListOptions{
				Limit:     limit,
				EventType: eventType,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	listCmd.Flags().StringVar(&dbPath, "db", "", "Audit BadgerDB directory (default: --audit-db)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to print")
	listCmd.Flags().StringVar(&eventType, "event", "", "Only records of this event type (change_allowed, change_rejected, fix_loop, mutation_gate)")

	auditCmd.AddCommand(listCmd)
	return auditCmd
}
