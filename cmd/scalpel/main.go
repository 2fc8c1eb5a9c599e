// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command scalpel checks proposed code changes against governance limits,
// runs the mutation gate on fixes and serves the same operations over HTTP.
//
// Usage:
//
//	scalpel config show
//	scalpel check --change src/auth/login.py=40 --change README.md=3
//	scalpel mutate --original old.py --fixed new.py --test test_new.py
//	scalpel audit list --limit 20
//	scalpel serve --port 8090
//	scalpel --quiet --log-dir ~/.code-scalpel/logs check -c app.py=12
//
// Exit codes: 0 on success, 1 on error, 2 when a change is blocked or a
// fix fails the mutation gate.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := execute(newRootCmd()); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
