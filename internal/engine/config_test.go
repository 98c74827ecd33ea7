package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigSettersAreNoOpsOnceLocked(t *testing.T) {
	// lockConfig is idempotent (sync.Once); calling it here makes this
	// test's behavior deterministic regardless of whether an earlier test
	// in the package has already opened a store and locked the config in.
	lockConfig()

	before := rotationMinSizeBytes()
	SetRotationMinSize(before + 12345)
	require.Equal(t, before, rotationMinSizeBytes())

	beforePct := compactionDensityPct()
	SetCompactionDensityPercent(beforePct + 1)
	require.Equal(t, beforePct, compactionDensityPct())
}
