// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	Version, Commit, Date = "v1.0.0", "abc1234", "2025-06-01"
	assert.Equal(t, "v1.0.0 (commit: abc1234, built: 2025-06-01)", String())
}
