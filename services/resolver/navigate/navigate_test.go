// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToResult(t *testing.T) {
	t.Run("encodes brand in path", func(t *testing.T) {
		n := ToResult("Dove Soap", "")
		assert.Equal(t, KindResult, n.Kind)
		assert.Equal(t, "/result/Dove%20Soap?success=true", n.URL)
	})

	t.Run("carries entity id", func(t *testing.T) {
		n := ToResult("Nestle", "e42")
		assert.Equal(t, "/result/Nestle?entityId=e42&success=true", n.URL)
	})
}

func TestToNextRound(t *testing.T) {
	n := ToNextRound("t2", "Dove Soap")
	assert.Equal(t, KindNextRound, n.Kind)
	assert.Equal(t, "/disambiguate?q=Dove+Soap&trace=t2", n.URL)
}

func TestToError(t *testing.T) {
	n := ToError("network_error")
	assert.Equal(t, KindError, n.Kind)
	// Error view is the result view with the sentinel brand.
	assert.Equal(t, "/result/unknown?error=network_error&success=false", n.URL)
}

func TestToWiden(t *testing.T) {
	n := ToWiden("Dove")
	assert.Equal(t, KindWiden, n.Kind)
	assert.Equal(t, "/search?q=Dove&wider=1", n.URL)
}

func TestRoundURL(t *testing.T) {
	assert.Equal(t, "/disambiguate?q=Dr.+Pepper&trace=t7", RoundURL("t7", "Dr. Pepper"))
}
