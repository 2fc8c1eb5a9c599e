// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fixloop

import "errors"

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// Termination conditions are never errors; they are reported in Result.
// These cover misuse only.
var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilAnalyzer indicates the loop was built without an ErrorAnalyzer.
	ErrNilAnalyzer = errors.New("error analyzer must not be nil")

	// ErrNilExecutor indicates the loop was built without a sandbox.
	ErrNilExecutor = errors.New("sandbox executor must not be nil")

	// ErrEmptyLanguage indicates a request without a language.
	ErrEmptyLanguage = errors.New("language must not be empty")
)
