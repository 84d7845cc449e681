// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package research talks to the upstream brand-research pipeline, the
// single network boundary that converts a chosen candidate into a
// definitive ownership answer.
package research

import (
	"context"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
)

// Client defines the resolution-call contract.
//
// Resolve performs exactly one request per invocation; retry policy, if
// any, belongs to the caller. Classification is total: every possible
// pipeline response - including malformed bodies, non-2xx statuses, and
// transport failures - maps to exactly one ResolutionOutcome. Resolve
// never panics and never surfaces a raw error.
type Client interface {
	Resolve(ctx context.Context, query string) datatypes.ResolutionOutcome
}
