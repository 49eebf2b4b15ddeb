//go:build linux

package rusage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTake_Succeeds(t *testing.T) {
	snap, err := Take()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.MaxRSSKB, int64(0))
	assert.GreaterOrEqual(t, snap.MinFlt, int64(0))
	assert.GreaterOrEqual(t, snap.UserTimeSec, 0.0)
}
